package filter

import (
	"time"

	"media_bot/internal/model"
)

// Bind extracts the attribute record of a message. Media attributes the
// message does not carry are bound to Absent; string attributes default to "".
func Bind(m model.Message) Record {
	rec := Record{
		"message_date":    Time(m.Date),
		"message_id":      Int(m.ID),
		"message_caption": String(m.Caption),
		"media_file_size": Absent,
		"media_width":     Absent,
		"media_height":    Absent,
		"media_file_name": String(""),
		"media_duration":  Absent,
		"media_type":      String(""),
	}
	if md := m.Media; md != nil {
		rec["media_file_size"] = Optional(md.FileSize)
		rec["media_width"] = Optional(md.Width)
		rec["media_height"] = Optional(md.Height)
		rec["media_file_name"] = String(md.FileName)
		rec["media_duration"] = Optional(md.Duration)
		rec["media_type"] = String(string(md.Kind))
	}
	addAliases(rec)
	return rec
}

// SampleRecord returns a record with every attribute set to a value of its
// natural type.
func SampleRecord() Record {
	rec := Record{
		"message_date":    Time(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)),
		"message_id":      Int(1),
		"message_caption": String(""),
		"media_file_size": Int(1),
		"media_width":     Int(1),
		"media_height":    Int(1),
		"media_file_name": String(""),
		"media_duration":  Int(1),
		"media_type":      String(""),
	}
	addAliases(rec)
	return rec
}

func addAliases(rec Record) {
	rec["id"] = rec["message_id"]
	rec["caption"] = rec["message_caption"]
	rec["file_size"] = rec["media_file_size"]
	rec["file_name"] = rec["media_file_name"]
}
