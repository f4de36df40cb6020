package webhook

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/dunamismax/earthworm/internal/domain"
	"github.com/dunamismax/earthworm/internal/pipeline"
	"github.com/dunamismax/earthworm/internal/provider"
)

// The workflow reads the recording from a binary property with exactly this name.
const (
	audioFieldName   = "audio_base64"
	audioFileName    = "audio.webm"
	audioContentType = "audio/webm"
)

func encodeMultipart(req domain.ChatRequest, image, audio string) ([]byte, string, error) {
	audioBytes, err := pipeline.DecodeBase64(audio)
	if err != nil {
		return nil, "", fmt.Errorf("%w: audio: %v", provider.ErrInvalidPayload, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"text", req.TextValue()},
		{"session_id", req.SessionID},
		{"language", req.Language},
	}
	if image != "" {
		fields = append(fields, [2]string{"image_base64", image})
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", field[0], err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, audioFieldName, audioFileName))
	header.Set("Content-Type", audioContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(audioBytes); err != nil {
		return nil, "", fmt.Errorf("write audio part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}
