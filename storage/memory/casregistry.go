package memory

import (
	"github.com/spf13/pflag"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:          "memory",
		Description:   "In-memory CAS (contents are lost on exit)",
		Usage:         casregistry.UsageDaemon,
		RegisterFlags: func(*pflag.FlagSet) {},
		Open: func() (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
	})
}
