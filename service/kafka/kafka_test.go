package kafka

import (
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSaramaConfig(t *testing.T) {
	c := DefaultConfig()
	c.ProducerRetries = 0
	c.ProducerCompression = "LZ4"

	cfg := BuildSaramaConfig(c)
	assert.Equal(t, 1, cfg.Producer.Retry.Max)
	assert.Equal(t, sarama.CompressionLZ4, cfg.Producer.Compression)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, "proom", cfg.ClientID)
	assert.Equal(t, []string{"127.0.0.1:9092"}, c.Brokers)
}

func TestSendKeyed(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"kind":"joined"}` {
			return errors.New("unexpected value " + string(val))
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducer(sp)
	require.NoError(t, p.SendKeyed("proom.room.lifecycle", "G1", []byte(`{"kind":"joined"}`), map[string]string{"kind": "joined"}))

	err := p.SendKeyed("proom.room.lifecycle", "G1", []byte(`{}`), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
