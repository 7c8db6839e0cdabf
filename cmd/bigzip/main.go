package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/nguyenvh/bigzip/internal/create"
	"github.com/nguyenvh/bigzip/internal/list"
)

var opts struct {
	Create create.Command `command:"create" alias:"c" description:"create a ZIP64 archive from an ordered list of files"`
	List   list.Command   `command:"list" alias:"ls" description:"list an archive's entries by scanning its tail, locally or in S3"`
}

func main() {
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil && !flags.WroteHelp(err) {
		os.Exit(1)
	}
}
