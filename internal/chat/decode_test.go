package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/apperror"
	"realtime-chat/internal/models"
)

func TestDecodeEmptyPayload(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		req, err := decode[models.SelectCounterpartRequest](json.RawMessage(raw))
		require.NoError(t, err)
		assert.Nil(t, req.TargetUserID)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := decode[models.SendPublicMessageRequest](json.RawMessage(`"text"`))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRequireHelpers(t *testing.T) {
	text, err := requireText("text", "  hi ")
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	_, err = requireText("text", "\n\t")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = requireUserID("target_user_id", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = requireUserID("target_user_id", `{"$ne":1}`)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = requireMessageID("42")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	id, err := requireMessageID(" 3f1c1b0e-8a4e-4d57-9d55-2f3b0b7f9a10 ")
	require.NoError(t, err)
	assert.Equal(t, "3f1c1b0e-8a4e-4d57-9d55-2f3b0b7f9a10", id)
}
