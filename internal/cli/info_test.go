package cli_test

import (
	"testing"

	"github.com/calvinalkan/chromecache/internal/cachetest"
	"github.com/calvinalkan/chromecache/internal/cli"
)

func Test_Info_Describes_An_Index_File(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	cachetest.SmallCache(t, c.Dir)

	stdout := c.MustRun("info", "index")

	cli.AssertContains(t, stdout, "Index file:")
	cli.AssertContains(t, stdout, "Version:     2.0")
	cli.AssertContains(t, stdout, "Entries:     2")
	cli.AssertContains(t, stdout, "Stored size: 1564 bytes")
	cli.AssertContains(t, stdout, "Last file:   f_000001")
	cli.AssertContains(t, stdout, "Table:       8 slots declared, 2 occupied")
	cli.AssertContains(t, stdout, "Created:     2019-11-01T16:40:00Z")
	cli.AssertContains(t, stdout, "Eviction:    filled=false")
}

func Test_Info_Describes_A_Block_File(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	cachetest.SmallCache(t, c.Dir)

	stdout := c.MustRun("info", "data_1")

	cli.AssertContains(t, stdout, "Block file:")
	cli.AssertContains(t, stdout, "Version:     2.0")
	cli.AssertContains(t, stdout, "File:        data_1 (next: none)")
	cli.AssertContains(t, stdout, "Block size:  256 bytes")
	cli.AssertContains(t, stdout, "Entries:     2 of 64")
	cli.AssertContains(t, stdout, "Allocated:   2 blocks in 2 runs")
	cli.AssertContains(t, stdout, "Runs:        [2,3) [5,6)")
}

func Test_Info_Respects_Configured_Time_Format(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	cachetest.SmallCache(t, c.Dir)
	c.WriteFile(".chromecache.json", []byte(`{"time_format": "unix"}`))

	stdout := c.MustRun("info", "index")

	cli.AssertContains(t, stdout, "Created:     1572626400")
}

func Test_Info_Debug_Dumps_Structure_Bytes(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	cachetest.SmallCache(t, c.Dir)

	stdout := c.MustRun("info", "--debug", "index")

	cli.AssertContains(t, stdout, "Header data:")
	cli.AssertContains(t, stdout, "Eviction block data:")
	// Index signature, little endian, at offset 0
	cli.AssertContains(t, stdout, "00000000  c3 ca 03 c1")

	stdout = c.MustRun("info", "--debug", "data_1")

	cli.AssertContains(t, stdout, "Header data:")
	cli.AssertContains(t, stdout, "00000000  c3 ca 04 c1")
}

func Test_Info_Rejects_An_Unrecognized_File(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("notes.txt", []byte("this is not a cache file"))

	stderr := c.MustFail("info", "notes.txt")

	cli.AssertContains(t, stderr, "unrecognized signature")
	cli.AssertContains(t, stderr, "neither index nor block file")
}

func Test_Info_Requires_Exactly_One_Path(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("info")

	cli.AssertContains(t, stderr, "expected exactly one file path")
}
