// Package scanner walks mbox containers and extracts call recordings.
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"vaultrelay/duration"
	"vaultrelay/model"
	"vaultrelay/stats"
)

// ErrContainerParse marks a container that could not be read at all. The
// orchestrator logs it and treats the container as empty.
var ErrContainerParse = errors.New("mailbox container unreadable")

const (
	markerOutgoing = "OUTGOING_CALL"
	markerIncoming = "INCOMING_CALL"
)

var audioExtensions = []string{".mp3", ".wav"}

// Scanner extracts call recordings from mbox containers and saves the audio
// payloads under the extract directory.
type Scanner struct {
	extractDir string
	logger     *slog.Logger
	collector  *stats.Collector
}

func New(extractDir string, logger *slog.Logger, collector *stats.Collector) (*Scanner, error) {
	if strings.TrimSpace(extractDir) == "" {
		return nil, fmt.Errorf("extract directory is empty")
	}
	if collector == nil {
		collector = stats.NewCollector()
	}
	return &Scanner{
		extractDir: extractDir,
		logger:     logger,
		collector:  collector,
	}, nil
}

// Scan iterates every message in the mbox file at path and returns one
// Recording per call message with a successfully saved audio attachment.
// A container-level failure returns ErrContainerParse-wrapped; per-message
// failures are logged and skipped.
func (s *Scanner) Scan(path string) ([]model.Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrContainerParse, path, err)
	}
	defer file.Close()

	return s.scan(mboxlib.NewReader(file), path)
}

func (s *Scanner) scan(reader *mboxlib.Reader, path string) ([]model.Recording, error) {
	var recordings []model.Recording

	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return recordings, nil
			}
			return nil, fmt.Errorf("%w: message %d in %s: %v", ErrContainerParse, idx, path, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("%w: message %d read in %s: %v", ErrContainerParse, idx, path, err)
		}

		s.collector.Record(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeScanned})

		rec, ok := s.scanMessage(raw, idx, path)
		if ok {
			recordings = append(recordings, rec)
		}
	}
}

func (s *Scanner) scanMessage(raw []byte, idx int, container string) (model.Recording, bool) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("skipping unparsable message", "container", container, "index", idx, "err", err)
		}
		return model.Recording{}, false
	}

	subject := mr.Header.Get("Subject")
	outgoing := strings.Contains(subject, markerOutgoing)
	incoming := strings.Contains(subject, markerIncoming)
	if !outgoing && !incoming && !strings.Contains(strings.ToLower(subject), "recording") {
		return model.Recording{}, false
	}

	messageID := strings.Trim(strings.TrimSpace(mr.Header.Get("Message-Id")), "<>")
	if messageID == "" {
		if s.logger != nil {
			s.logger.Warn("call message missing Message-Id, skipping", "container", container, "index", idx)
		}
		return model.Recording{}, false
	}

	fromNumber := strings.TrimPrefix(mr.Header.Get("From"), "+")
	toNumber := strings.TrimPrefix(mr.Header.Get("To"), "+")
	dateTime := mr.Header.Get("Date")

	callType := model.CallIncoming
	phoneNumber := fromNumber
	if outgoing {
		callType = model.CallOutgoing
		phoneNumber = toNumber
	}

	bodyText, payload := s.collectParts(mr, idx, container)
	if payload == nil {
		// A call message without a qualifying attachment yields nothing.
		return model.Recording{}, false
	}

	callDuration, _ := duration.Extract(subject, bodyText)

	// Extension is always .mp3 regardless of the source format; the date
	// header goes into the name verbatim. Both are deliberate.
	fileName := fmt.Sprintf("%s_%s.mp3", phoneNumber, dateTime)

	if err := os.WriteFile(filepath.Join(s.extractDir, fileName), payload, 0o644); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to save recording, dropping message", "file", fileName, "messageID", messageID, "err", err)
		}
		s.collector.Record(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeError, MessageID: messageID, Err: err})
		return model.Recording{}, false
	}

	if s.logger != nil {
		s.logger.Info("extracted audio recording", "file", fileName, "messageID", messageID, "callType", string(callType))
	}
	s.collector.Record(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeExtracted, MessageID: messageID})

	return model.Recording{
		MessageID:  messageID,
		FileName:   fileName,
		FromNumber: fromNumber,
		ToNumber:   toNumber,
		Duration:   callDuration,
		CallType:   callType,
		DateTime:   dateTime,
	}, true
}

// collectParts walks the MIME parts once, in order, gathering the
// concatenated plain-text body and the first qualifying audio attachment.
// Later qualifying attachments in the same message are ignored.
func (s *Scanner) collectParts(mr *mail.Reader, idx int, container string) (string, []byte) {
	var bodyText strings.Builder
	var payload []byte

	for {
		part, err := mr.NextPart()
		if err != nil {
			if !errors.Is(err, io.EOF) && s.logger != nil {
				s.logger.Warn("message part error", "container", container, "index", idx, "err", err)
			}
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			if ct != "text/plain" {
				continue
			}
			if b, err := io.ReadAll(part.Body); err == nil {
				bodyText.Write(b)
			}
		case *mail.AttachmentHeader:
			if payload != nil {
				continue
			}
			ct, _, _ := h.ContentType()
			if ct != "application/octet-stream" {
				continue
			}
			filename, _ := h.Filename()
			if !qualifiesAsRecording(filename) {
				continue
			}
			b, err := io.ReadAll(part.Body)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("failed to read attachment", "container", container, "index", idx, "filename", filename, "err", err)
				}
				continue
			}
			payload = b
		}
	}

	return bodyText.String(), payload
}

func qualifiesAsRecording(filename string) bool {
	if filename == "" {
		return false
	}
	lower := strings.ToLower(filename)
	if strings.Contains(lower, "recording") {
		return true
	}
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
