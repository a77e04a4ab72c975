package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/chromecache/pkg/blockfile"
)

// HashCmd returns the hash command.
func HashCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("hash", flag.ContinueOnError),
		Usage: "hash <key>...",
		Short: "Hash keys the way the cache does",
		Long: "Print the cache's hash of each key, the value entry records\n" +
			"carry and the index table buckets by. Useful for locating a\n" +
			"known URL in a cache image.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execHash(o, args)
		},
	}
}

func execHash(o *IO, args []string) error {
	if len(args) == 0 {
		return errors.New("missing key argument")
	}

	for _, key := range args {
		o.Printf("%08x  %s\n", blockfile.SuperFastHash([]byte(key)), key)
	}

	return nil
}
