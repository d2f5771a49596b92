package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalerrors "github.com/postlane/mailengine/internal/errors"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/repository"
)

type fakeAPIKeyRepository struct {
	repository.APIKeyRepository
	key *models.APIKey
}

func (f *fakeAPIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	return f.key, nil
}

type fakeMessageRepository struct {
	repository.MessageRepository
	created *models.Message
}

func (f *fakeMessageRepository) CreateMessage(ctx context.Context, message *models.Message) (*models.Message, bool, error) {
	f.created = message
	return message, true, nil
}

func newTestStore(apiKey *models.APIKey) (*Store, *fakeMessageRepository) {
	messages := &fakeMessageRepository{}
	repos := &repository.Repositories{
		APIKeyRepository:  &fakeAPIKeyRepository{key: apiKey},
		MessageRepository: messages,
	}
	return NewStore(repos), messages
}

func TestStore_CreateMessage_RejectsInvalidFromAddress(t *testing.T) {
	// Arrange
	s, messages := newTestStore(&models.APIKey{ID: "key_1", RateLimitPerSecond: 100})
	message := &models.Message{APIKeyID: "key_1", FromAddress: "not-an-email", ToAddress: "to@example.com"}

	// Act
	_, _, err := s.CreateMessage(context.Background(), message)

	// Assert
	assert.ErrorIs(t, err, internalerrors.ErrInvalidAddress)
	assert.Nil(t, messages.created)
}

func TestStore_CreateMessage_RejectsInvalidToAddress(t *testing.T) {
	// Arrange
	s, messages := newTestStore(&models.APIKey{ID: "key_1", RateLimitPerSecond: 100})
	message := &models.Message{APIKeyID: "key_1", FromAddress: "from@example.com", ToAddress: "not-an-email"}

	// Act
	_, _, err := s.CreateMessage(context.Background(), message)

	// Assert
	assert.ErrorIs(t, err, internalerrors.ErrInvalidAddress)
	assert.Nil(t, messages.created)
}

func TestStore_CreateMessage_UnknownAPIKey(t *testing.T) {
	// Arrange
	s, _ := newTestStore(nil)
	message := &models.Message{APIKeyID: "missing", FromAddress: "from@example.com", ToAddress: "to@example.com"}

	// Act
	_, _, err := s.CreateMessage(context.Background(), message)

	// Assert
	assert.ErrorIs(t, err, internalerrors.ErrAPIKeyNotFound)
}

func TestStore_CreateMessage_Succeeds(t *testing.T) {
	// Arrange
	s, messages := newTestStore(&models.APIKey{ID: "key_1", RateLimitPerSecond: 100})
	message := &models.Message{APIKeyID: "key_1", FromAddress: "from@example.com", ToAddress: "to@example.com"}

	// Act
	created, isNew, err := s.CreateMessage(context.Background(), message)

	// Assert
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Same(t, message, created)
	assert.Same(t, message, messages.created)
}

func TestStore_CreateMessage_RateLimited(t *testing.T) {
	// Arrange: burst of 1*2=2 at a rate this low means the third call in
	// the same instant exceeds the bucket.
	s, _ := newTestStore(&models.APIKey{ID: "key_1", RateLimitPerSecond: 1})
	message := func() *models.Message {
		return &models.Message{APIKeyID: "key_1", FromAddress: "from@example.com", ToAddress: "to@example.com"}
	}

	_, _, err1 := s.CreateMessage(context.Background(), message())
	_, _, err2 := s.CreateMessage(context.Background(), message())
	_, _, err3 := s.CreateMessage(context.Background(), message())

	// Assert
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.ErrorIs(t, err3, internalerrors.ErrRateLimited)
}
