package imagehost

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/creatify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignSortsParamsAndAppendsSecret(t *testing.T) {
	s := NewSigner(config.ImageHostConfig{
		CloudName: "demo",
		APIKey:    "key123",
		APISecret: "secret",
	})

	got := s.signAt(map[string]string{"folder": "projects", "public_id": "abc"}, 1700000000)

	sum := sha1.Sum([]byte("folder=projects&public_id=abc&timestamp=1700000000secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got.Signature)
	assert.Equal(t, int64(1700000000), got.Timestamp)
	assert.Equal(t, "key123", got.APIKey)
	assert.Equal(t, "demo", got.CloudName)
}

func TestSignSkipsEmptyParams(t *testing.T) {
	s := NewSigner(config.ImageHostConfig{APIKey: "k", APISecret: "secret"})

	withEmpty := s.signAt(map[string]string{"folder": ""}, 42)
	without := s.signAt(nil, 42)
	assert.Equal(t, without.Signature, withEmpty.Signature)
}

func TestConfigured(t *testing.T) {
	require.False(t, NewSigner(config.ImageHostConfig{}).Configured())
	require.True(t, NewSigner(config.ImageHostConfig{APIKey: "k", APISecret: "s"}).Configured())
}
