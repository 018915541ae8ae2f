package scanner

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vaultrelay/model"
	"vaultrelay/stats"
)

type testMessage struct {
	from, to, subject, date, messageID string
	bodyText                           string
	attachments                        []testAttachment
}

type testAttachment struct {
	filename    string
	contentType string
	payload     []byte
}

func buildMbox(messages ...testMessage) string {
	var b strings.Builder
	for i, m := range messages {
		fmt.Fprintf(&b, "From %d@mailer Mon Feb  5 00:00:00 2024\n", i)
		fmt.Fprintf(&b, "From: %s\n", m.from)
		fmt.Fprintf(&b, "To: %s\n", m.to)
		fmt.Fprintf(&b, "Subject: %s\n", m.subject)
		fmt.Fprintf(&b, "Date: %s\n", m.date)
		fmt.Fprintf(&b, "Message-ID: <%s>\n", m.messageID)
		b.WriteString("MIME-Version: 1.0\n")
		boundary := fmt.Sprintf("boundary%d", i)
		fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\n\n", boundary)

		fmt.Fprintf(&b, "--%s\n", boundary)
		b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\n\n")
		b.WriteString(m.bodyText + "\n")

		for _, a := range m.attachments {
			fmt.Fprintf(&b, "--%s\n", boundary)
			fmt.Fprintf(&b, "Content-Type: %s\n", a.contentType)
			fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\n", a.filename)
			b.WriteString("Content-Transfer-Encoding: base64\n\n")
			b.WriteString(base64.StdEncoding.EncodeToString(a.payload) + "\n")
		}
		fmt.Fprintf(&b, "--%s--\n\n", boundary)
	}
	return b.String()
}

func writeMbox(t *testing.T, dir string, messages ...testMessage) string {
	t.Helper()
	path := filepath.Join(dir, "calls.mbox")
	if err := os.WriteFile(path, []byte(buildMbox(messages...)), 0o644); err != nil {
		t.Fatalf("write mbox fixture: %v", err)
	}
	return path
}

func newTestScanner(t *testing.T, extractDir string) *Scanner {
	t.Helper()
	s, err := New(extractDir, nil, stats.NewCollector())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestScan_OutgoingCall(t *testing.T) {
	dir := t.TempDir()
	extractDir := t.TempDir()

	payload := []byte("fake-audio-bytes")
	path := writeMbox(t, dir, testMessage{
		from:      "+15551234567",
		to:        "+15557654321",
		subject:   "OUTGOING_CALL recording Duration: 2:15",
		date:      "Mon, 5 Feb 2024 10:00:00 +0000",
		messageID: "call-001@voice.example.com",
		bodyText:  "Outgoing call recording",
		attachments: []testAttachment{
			{filename: "recording_001.wav", contentType: "application/octet-stream", payload: payload},
		},
	})

	recs, err := newTestScanner(t, extractDir).Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Scan() returned %d recordings, want 1", len(recs))
	}

	rec := recs[0]
	if rec.MessageID != "call-001@voice.example.com" {
		t.Errorf("MessageID = %q", rec.MessageID)
	}
	if rec.CallType != model.CallOutgoing {
		t.Errorf("CallType = %q, want OUTGOING", rec.CallType)
	}
	if rec.Duration != "2:15" {
		t.Errorf("Duration = %q, want 2:15", rec.Duration)
	}
	if rec.FromNumber != "15551234567" || rec.ToNumber != "15557654321" {
		t.Errorf("numbers = %q / %q, want leading + stripped", rec.FromNumber, rec.ToNumber)
	}
	// Outgoing call names the file after the recipient; extension is
	// always .mp3 regardless of source format.
	wantName := "15557654321_Mon, 5 Feb 2024 10:00:00 +0000.mp3"
	if rec.FileName != wantName {
		t.Errorf("FileName = %q, want %q", rec.FileName, wantName)
	}

	saved, err := os.ReadFile(filepath.Join(extractDir, rec.FileName))
	if err != nil {
		t.Fatalf("saved audio missing: %v", err)
	}
	if string(saved) != string(payload) {
		t.Errorf("saved payload = %q, want %q", saved, payload)
	}
}

func TestScan_IncomingCallNamesFileAfterSender(t *testing.T) {
	dir := t.TempDir()
	extractDir := t.TempDir()

	path := writeMbox(t, dir, testMessage{
		from:      "+15551112222",
		to:        "+15553334444",
		subject:   "INCOMING_CALL recording",
		date:      "Tue, 6 Feb 2024 11:00:00 +0000",
		messageID: "call-002@voice.example.com",
		bodyText:  "Duration: 1:02",
		attachments: []testAttachment{
			{filename: "audio.mp3", contentType: "application/octet-stream", payload: []byte("x")},
		},
	})

	recs, err := newTestScanner(t, extractDir).Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Scan() returned %d recordings, want 1", len(recs))
	}
	if recs[0].CallType != model.CallIncoming {
		t.Errorf("CallType = %q, want INCOMING", recs[0].CallType)
	}
	if !strings.HasPrefix(recs[0].FileName, "15551112222_") {
		t.Errorf("FileName = %q, want sender-number prefix", recs[0].FileName)
	}
	// Duration came from the plain-text body, not the subject.
	if recs[0].Duration != "1:02" {
		t.Errorf("Duration = %q, want 1:02", recs[0].Duration)
	}
}

func TestScan_SkipsNonCallMessages(t *testing.T) {
	dir := t.TempDir()

	path := writeMbox(t, dir, testMessage{
		from:      "alice@example.com",
		to:        "bob@example.com",
		subject:   "Lunch tomorrow?",
		date:      "Mon, 5 Feb 2024 10:00:00 +0000",
		messageID: "mail-001@example.com",
		bodyText:  "See you at noon",
		attachments: []testAttachment{
			{filename: "menu.mp3", contentType: "application/octet-stream", payload: []byte("x")},
		},
	})

	recs, err := newTestScanner(t, t.TempDir()).Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Scan() returned %d recordings, want 0 for non-call message", len(recs))
	}
}

func TestScan_CallWithoutQualifyingAttachment(t *testing.T) {
	dir := t.TempDir()

	path := writeMbox(t, dir,
		testMessage{
			from:      "+15550000001",
			to:        "+15550000002",
			subject:   "OUTGOING_CALL recording",
			date:      "Mon, 5 Feb 2024 10:00:00 +0000",
			messageID: "call-003@voice.example.com",
			bodyText:  "no attachment at all",
		},
		testMessage{
			from:      "+15550000001",
			to:        "+15550000002",
			subject:   "OUTGOING_CALL recording",
			date:      "Mon, 5 Feb 2024 11:00:00 +0000",
			messageID: "call-004@voice.example.com",
			bodyText:  "attachment with wrong name and type",
			attachments: []testAttachment{
				{filename: "notes.pdf", contentType: "application/octet-stream", payload: []byte("x")},
				{filename: "audio.mp3", contentType: "text/plain", payload: []byte("x")},
			},
		},
	)

	recs, err := newTestScanner(t, t.TempDir()).Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Scan() returned %d recordings, want 0 without qualifying attachment", len(recs))
	}
}

func TestScan_FirstQualifyingAttachmentWins(t *testing.T) {
	dir := t.TempDir()
	extractDir := t.TempDir()

	path := writeMbox(t, dir, testMessage{
		from:      "+15550000001",
		to:        "+15550000002",
		subject:   "OUTGOING_CALL recording",
		date:      "Mon, 5 Feb 2024 10:00:00 +0000",
		messageID: "call-005@voice.example.com",
		bodyText:  "two attachments",
		attachments: []testAttachment{
			{filename: "recording_a.wav", contentType: "application/octet-stream", payload: []byte("first")},
			{filename: "recording_b.wav", contentType: "application/octet-stream", payload: []byte("second")},
		},
	})

	recs, err := newTestScanner(t, extractDir).Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Scan() returned %d recordings, want 1", len(recs))
	}

	saved, err := os.ReadFile(filepath.Join(extractDir, recs[0].FileName))
	if err != nil {
		t.Fatalf("saved audio missing: %v", err)
	}
	if string(saved) != "first" {
		t.Errorf("saved payload = %q, want the first attachment in part order", saved)
	}
}

func TestScan_SaveFailureDropsOnlyThatMessage(t *testing.T) {
	dir := t.TempDir()
	extractDir := t.TempDir()

	first := testMessage{
		from:      "+15550000001",
		to:        "+15550000002",
		subject:   "OUTGOING_CALL recording",
		date:      "Mon, 5 Feb 2024 10:00:00 +0000",
		messageID: "call-006@voice.example.com",
		bodyText:  "save will fail",
		attachments: []testAttachment{
			{filename: "recording.wav", contentType: "application/octet-stream", payload: []byte("x")},
		},
	}
	second := first
	second.date = "Mon, 5 Feb 2024 11:00:00 +0000"
	second.messageID = "call-007@voice.example.com"
	second.bodyText = "save will succeed"

	// Block the first message's destination with a directory so its write
	// fails while the sibling's still succeeds.
	blocked := "15550000002_Mon, 5 Feb 2024 10:00:00 +0000.mp3"
	if err := os.Mkdir(filepath.Join(extractDir, blocked), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	path := writeMbox(t, dir, first, second)

	recs, err := newTestScanner(t, extractDir).Scan(path)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Scan() returned %d recordings, want 1 surviving sibling", len(recs))
	}
	if recs[0].MessageID != "call-007@voice.example.com" {
		t.Errorf("surviving MessageID = %q, want call-007", recs[0].MessageID)
	}
}

func TestScan_UnreadableContainer(t *testing.T) {
	s := newTestScanner(t, t.TempDir())
	_, err := s.Scan(filepath.Join(t.TempDir(), "does-not-exist.mbox"))
	if !errors.Is(err, ErrContainerParse) {
		t.Errorf("Scan() error = %v, want ErrContainerParse", err)
	}
}
