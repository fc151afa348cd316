package eventbus

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/controlplane/internal/models"
)

func TestConnectWithEmptyURLDisablesFanOut(t *testing.T) {
	p := Connect("", zerolog.Nop())
	require.Nil(t, p)
}

func TestNilPublisherMethodsAreNoOps(t *testing.T) {
	var p *Publisher
	require.NotPanics(t, func() {
		p.PublishEvent(models.Event{})
		p.PublishTrade(models.Trade{})
		p.PublishDeath(models.Death{})
		p.Close()
	})
}

func TestConnectWithUnreachableURLReturnsNil(t *testing.T) {
	p := Connect("nats://127.0.0.1:1", zerolog.Nop())
	require.Nil(t, p)
}
