package localfs

import (
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/casregistry"
)

var (
	flagLocalDir string
	flagCompress bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagLocalDir, "localfs-dir", "", "LocalFS CAS directory (for --backend=localfs)")
			fs.BoolVar(&flagCompress, "localfs-compress", false, "Store new blocks zstd-compressed (for --backend=localfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			if flagLocalDir == "" {
				return nil, nil, fmt.Errorf("missing --localfs-dir")
			}
			cas, err := NewWithOptions(flagLocalDir, Options{Compress: flagCompress})
			return cas, nil, err
		},
	})
}
