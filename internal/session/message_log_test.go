package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricochet1k/wamux/internal/domain"
)

func msgWithID(id string) domain.CompactMessage {
	return domain.CompactMessage{Key: domain.MessageKey{ID: id}}
}

func TestMessageLogKeepsInsertionOrder(t *testing.T) {
	log := NewMessageLog(3)
	log.Append(msgWithID("1"))
	log.Append(msgWithID("2"))

	items := log.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].Key.ID)
	assert.Equal(t, "2", items[1].Key.ID)
}

func TestMessageLogEvictsOldestAtCapacity(t *testing.T) {
	log := NewMessageLog(DefaultMessageLogCapacity)
	for i := 1; i <= DefaultMessageLogCapacity; i++ {
		assert.False(t, log.Append(msgWithID(fmt.Sprint(i))))
	}
	require.Equal(t, 50, log.Len())

	assert.True(t, log.Append(msgWithID("51")))
	require.Equal(t, 50, log.Len())

	items := log.Items()
	assert.Equal(t, "2", items[0].Key.ID)
	assert.Equal(t, "51", items[49].Key.ID)
	for i, m := range items {
		assert.Equal(t, fmt.Sprint(i+2), m.Key.ID)
	}
}

func TestMessageLogItemsIsACopy(t *testing.T) {
	log := NewMessageLog(2)
	log.Append(msgWithID("a"))
	items := log.Items()
	items[0].Key.ID = "mutated"
	assert.Equal(t, "a", log.Items()[0].Key.ID)
}

func TestMessageLogDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultMessageLogCapacity, NewMessageLog(0).Cap())
}
