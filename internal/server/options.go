package server

import (
	"example.com/cnfconv/internal/common"
	"example.com/cnfconv/internal/config"
)

// ManifestSigningOptions configures detached JWS manifest signing.
type ManifestSigningOptions struct {
	PrivateKeyPath  string
	CertificatePath string
}

func (o ManifestSigningOptions) enabled() bool {
	return o.PrivateKeyPath != "" && o.CertificatePath != ""
}

// Options configures server creation.
type Options struct {
	StorageDir      string
	DefaultFormat   string
	MaxUploadBytes  int64
	// MaxDecodedBytes caps the size of a decompressed upload.
	MaxDecodedBytes int64
	ManifestSigning ManifestSigningOptions
	Journal         *common.Journal
	Metrics         *common.Metrics
}

// OptionsFromConfig maps daemon configuration onto server options.
func OptionsFromConfig(cfg config.Config) Options {
	format := config.FormatText
	if len(cfg.Formats) > 0 {
		format = cfg.Formats[0]
	}
	return Options{
		StorageDir:      cfg.StorageDir,
		DefaultFormat:   format,
		MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
		MaxDecodedBytes: int64(cfg.MaxDecodedMB) << 20,
		ManifestSigning: ManifestSigningOptions{
			PrivateKeyPath:  cfg.ManifestSigning.PrivateKey,
			CertificatePath: cfg.ManifestSigning.Certificate,
		},
	}
}
