package embedclient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/infra/embedclient"
)

type fakeEmbedder struct {
	texts  []string
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return f.vector, f.err
}

func Test_Client_Embed(t *testing.T) {
	t.Run("Should dispatch to the registered embedder for the provider/model pair", func(t *testing.T) {
		fake := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
		client := embedclient.New(embedclient.Options{})
		client.Register("openai", "text-embedding-3-small", fake)

		vector, err := client.Embed(context.Background(), "openai", "text-embedding-3-small", "an aristocrat's movie")

		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
		assert.Equal(t, []string{"an aristocrat's movie"}, fake.texts)
	})

	t.Run("Should wrap embedder errors with the provider/model pair", func(t *testing.T) {
		fake := &fakeEmbedder{err: errors.New("quota exceeded")}
		client := embedclient.New(embedclient.Options{})
		client.Register("openai", "text-embedding-3-small", fake)

		_, err := client.Embed(context.Background(), "openai", "text-embedding-3-small", "hi")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai/text-embedding-3-small")
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("Should fail permanently on an unsupported provider with no registered embedder", func(t *testing.T) {
		client := embedclient.New(embedclient.Options{})

		_, err := client.Embed(context.Background(), "nope", "m", "hi")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
		assert.True(t, effector.IsPermanent(err), "configuration failures are not retryable")
	})
}
