package objectstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrNoRecords is returned for notifications without object records.
var ErrNoRecords = errors.New("storage notification has no records")

// Event is one completed object write.
type Event struct {
	Bucket string
	Key    string
	Size   int64
}

// Notification is the S3 bucket notification document. MinIO emits the
// same shape.
type Notification struct {
	Records []NotificationRecord `json:"Records"`
}

// NotificationRecord is one entry of a Notification.
type NotificationRecord struct {
	EventVersion string    `json:"eventVersion"`
	EventSource  string    `json:"eventSource"`
	EventTime    time.Time `json:"eventTime"`
	EventName    string    `json:"eventName"`
	S3           struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseNotification decodes a bucket notification into events. Object keys
// arrive URL-encoded and are decoded here. Records that are not object
// creations, such as the s3:TestEvent, are skipped.
func ParseNotification(data []byte) ([]Event, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode storage notification: %w", err)
	}

	var events []Event
	for _, r := range n.Records {
		if r.EventName != "" && !strings.Contains(r.EventName, "ObjectCreated") {
			continue
		}
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("decode object key %q: %w", r.S3.Object.Key, err)
		}
		if key == "" {
			continue
		}
		events = append(events, Event{Bucket: r.S3.Bucket.Name, Key: key, Size: r.S3.Object.Size})
	}
	if len(events) == 0 {
		return nil, ErrNoRecords
	}
	return events, nil
}

// EncodeNotification builds a bucket notification for events, so locally
// stored objects trigger ingestion exactly like S3 ones.
func EncodeNotification(now time.Time, events ...Event) ([]byte, error) {
	n := Notification{Records: make([]NotificationRecord, 0, len(events))}
	for _, e := range events {
		var r NotificationRecord
		r.EventVersion = "2.1"
		r.EventSource = "ecx:filestore"
		r.EventTime = now.UTC()
		r.EventName = "ObjectCreated:Put"
		r.S3.Bucket.Name = e.Bucket
		r.S3.Object.Key = url.QueryEscape(e.Key)
		r.S3.Object.Size = e.Size
		n.Records = append(n.Records, r)
	}
	return json.Marshal(n)
}
