package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

func TestDLQInsertTruncatesMessage(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewDLQRepository(db)

	eventID := uuid.New()
	orderID := uuid.New()
	topic := "orders"
	msg := strings.Repeat("x", maxDLQErrorLen+200)
	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Topic:         &topic,
			Payload:       json.RawMessage(`{"version":1}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &msg,
			AttemptCount:  5,
		})
	})
	require.NoError(t, err)

	got, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.ErrorMessage)
	assert.Len(t, *got.ErrorMessage, maxDLQErrorLen)
	require.NotNil(t, got.Topic)
	assert.Equal(t, "orders", *got.Topic)
	assert.Equal(t, 5, got.AttemptCount)

	rows, err := repo.ListByAggregate(context.Background(), orderID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDLQFindMissingReturnsNil(t *testing.T) {
	repo := NewDLQRepository(dbtest.Open(t))
	got, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDLQInsertRequiresTransaction(t *testing.T) {
	repo := NewDLQRepository(nil)
	require.ErrorIs(t, repo.InsertTx(nil, models.OutboxDLQ{}), errNoTransaction)
}

func TestClipUTF8KeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "é"
	got := clipUTF8(msg, maxDLQErrorLen)
	assert.Equal(t, maxDLQErrorLen-1, len(got))
	assert.True(t, strings.HasSuffix(got, "a"))
	assert.Equal(t, "short", clipUTF8("short", maxDLQErrorLen))
}
