package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRKey(t *testing.T) {
	id := uuid.MustParse("0b7e1f8a-1111-4222-8333-444455556666")
	assert.Equal(t, "qr/0b7e1f8a-1111-4222-8333-444455556666.png", QRKey(id))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "ap-south-1"}, nil)
	assert.Error(t, err)
}

func TestPresignQRIsOffline(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Region:               "ap-south-1",
		AccessKeyID:          "AKIDEXAMPLE",
		SecretAccessKey:      "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		QRBucket:             "gatherpass-tickets",
		PresignExpireMinutes: 5,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.PresignExpire())

	url, err := s.PresignQR(context.Background(), "qr/abc.png")
	require.NoError(t, err)
	assert.Contains(t, url, "gatherpass-tickets")
	assert.Contains(t, url, "qr/abc.png")
	assert.Contains(t, url, "X-Amz-Expires=300")
	assert.Contains(t, url, "X-Amz-Signature=")
}
