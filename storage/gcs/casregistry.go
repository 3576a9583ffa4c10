package gcs

import (
	"context"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/pflag"
	"google.golang.org/api/option"

	"xdao.co/dagstore/storage"
	"xdao.co/dagstore/storage/casregistry"
)

var (
	flagBucket      string
	flagPrefix      string
	flagCredentials string
	flagEndpoint    string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "gcs",
		Description: "Google Cloud Storage bucket (one object per block)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagBucket, "gcs-bucket", "", "Bucket name (for --backend=gcs)")
			fs.StringVar(&flagPrefix, "gcs-prefix", "", "Object name prefix (for --backend=gcs)")
			fs.StringVar(&flagCredentials, "gcs-credentials", "", "Service account JSON file; empty uses application default credentials (for --backend=gcs)")
			fs.StringVar(&flagEndpoint, "gcs-endpoint", "", "Override the API endpoint, e.g. for an emulator; disables authentication (for --backend=gcs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			if flagBucket == "" {
				return nil, nil, fmt.Errorf("missing --gcs-bucket")
			}
			var opts []option.ClientOption
			if flagCredentials != "" {
				opts = append(opts, option.WithCredentialsFile(flagCredentials))
			}
			if flagEndpoint != "" {
				opts = append(opts, option.WithEndpoint(flagEndpoint), option.WithoutAuthentication())
			}
			client, err := gcstorage.NewClient(context.Background(), opts...)
			if err != nil {
				return nil, nil, fmt.Errorf("gcs: %w", err)
			}
			return &CAS{Client: client, Bucket: flagBucket, Prefix: flagPrefix}, client.Close, nil
		},
	})
}
