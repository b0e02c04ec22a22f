package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobEnvelope(t *testing.T) {
	id := uuid.New()
	job, err := NewJob(JobTypeQRRender, QRRenderPayload{RegistrationID: id})
	require.NoError(t, err)
	assert.Equal(t, JobTypeQRRender, job.Type)
	assert.Zero(t, job.Attempt)
	assert.NotEmpty(t, job.ID)

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	var back Job
	require.NoError(t, json.Unmarshal(raw, &back))
	var p QRRenderPayload
	require.NoError(t, json.Unmarshal(back.Payload, &p))
	assert.Equal(t, id, p.RegistrationID)
}

func TestNewJobRejectsUnencodablePayload(t *testing.T) {
	_, err := NewJob(JobTypeQRRender, make(chan int))
	assert.Error(t, err)
}
