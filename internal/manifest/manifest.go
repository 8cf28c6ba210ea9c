package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/cnfconv/internal/common"
	"example.com/cnfconv/internal/crypto"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time  `json:"createdAt"`
	ShaAlgo   string     `json:"shaAlgo"`
	Items     []Item     `json:"items"`
	Signature *Signature `json:"signature,omitempty"`
}

type Signature struct {
	Type          string `json:"type"`
	CertSubject   string `json:"certSubject,omitempty"`
	Issuer        string `json:"issuer,omitempty"`
	SignatureFile string `json:"signatureFile,omitempty"`
}

func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: itemType(p)})
	}
	return m, nil
}

func itemType(p string) string {
	base := strings.ToLower(p)
	if common.CompressionOf(base) != common.CompressionNone {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	switch filepath.Ext(base) {
	case ".cnf":
		return "cnf"
	case ".txt":
		return "report"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".pdf":
		return "pdf"
	}
	return "other"
}

func Marshal(m Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func Save(m Manifest, out string) error {
	b, err := Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

// SignaturePath returns the default detached signature path for out.
func SignaturePath(out string) string {
	ext := filepath.Ext(out)
	if ext != "" {
		return out[:len(out)-len(ext)] + ".jws"
	}
	return out + ".jws"
}

// SaveSigned records the signer in m, writes the manifest to out and a
// detached JWS over the written bytes to sigPath.
func SaveSigned(m Manifest, out, sigPath string, keyPEM, certPEM []byte) (Manifest, error) {
	cert, err := crypto.ParseCertificate(certPEM)
	if err != nil {
		return m, err
	}
	if sigPath == "" {
		sigPath = SignaturePath(out)
	}
	m.Signature = &Signature{
		Type:          "jws-detached",
		CertSubject:   cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		SignatureFile: sigPath,
	}
	payload, err := Marshal(m)
	if err != nil {
		return m, err
	}
	jws, err := crypto.SignDetachedJWS(payload, keyPEM)
	if err != nil {
		return m, err
	}
	jwsBytes, err := json.MarshalIndent(jws, "", "  ")
	if err != nil {
		return m, err
	}
	if err := os.WriteFile(sigPath, jwsBytes, 0644); err != nil {
		return m, err
	}
	return m, os.WriteFile(out, payload, 0644)
}

// VerifyFiles checks the detached signature at sigPath against the
// manifest file and certificate.
func VerifyFiles(manifestPath, sigPath, certPath string) error {
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	jwsBytes, err := os.ReadFile(sigPath)
	if err != nil {
		return err
	}
	certBytes, err := os.ReadFile(certPath)
	if err != nil {
		return err
	}
	var jws crypto.JWS
	if err := json.Unmarshal(jwsBytes, &jws); err != nil {
		return err
	}
	return crypto.VerifyDetachedJWS(manifestBytes, jws, certBytes)
}
