package ipfs

import (
	"os"

	"github.com/spf13/pflag"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/casregistry"
)

var (
	flagBin  string
	flagPath string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repository via the ipfs CLI (offline)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH of the repository; empty uses the environment (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			var env []string
			if flagPath != "" {
				env = append(os.Environ(), "IPFS_PATH="+flagPath)
			}
			return New(Options{Bin: flagBin, Env: env}), nil, nil
		},
	})
}
