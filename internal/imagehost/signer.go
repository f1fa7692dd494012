// Package imagehost signs direct browser uploads to the external image
// host. The server never proxies image bytes; it only hands the client a
// short-lived signature over the upload parameters.
package imagehost

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/creatify/internal/config"
)

type Signer struct {
	cfg config.ImageHostConfig
}

func NewSigner(cfg config.ImageHostConfig) *Signer {
	return &Signer{cfg: cfg}
}

// Configured reports whether upload credentials are present.
func (s *Signer) Configured() bool {
	return s.cfg.APIKey != "" && s.cfg.APISecret != ""
}

// UploadSignature is what the frontend needs to perform a signed upload.
type UploadSignature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	APIKey    string `json:"apiKey"`
	CloudName string `json:"cloudName"`
}

// Sign produces a signature over the given upload parameters plus a fresh
// timestamp. The host expects a SHA-1 over the sorted key=value pairs
// joined with "&", with the API secret appended.
func (s *Signer) Sign(params map[string]string) UploadSignature {
	ts := time.Now().Unix()
	return s.signAt(params, ts)
}

func (s *Signer) signAt(params map[string]string, ts int64) UploadSignature {
	all := make(map[string]string, len(params)+1)
	for k, v := range params {
		if v != "" {
			all[k] = v
		}
	}
	all["timestamp"] = strconv.FormatInt(ts, 10)

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(all[k])
	}
	sb.WriteString(s.cfg.APISecret)

	sum := sha1.Sum([]byte(sb.String()))
	return UploadSignature{
		Signature: hex.EncodeToString(sum[:]),
		Timestamp: ts,
		APIKey:    s.cfg.APIKey,
		CloudName: s.cfg.CloudName,
	}
}
