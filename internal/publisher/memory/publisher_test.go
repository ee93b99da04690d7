package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/useneurox-company/sitesnap/internal/publisher"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "crawl-events", publisher.CrawlCompleted{
		Site:       "shop.example",
		Status:     "success",
		TotalPages: 7,
		FinishedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "template-events", publisher.TemplatesFound{Site: "shop.example"})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "crawl-events", msgs[0].Topic)
	require.Equal(t, "template-events", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "crawl-events", pub.Messages()[0].Topic, "Messages must return a copy")
}
