package archive

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

// Event is one clip placed on the record timeline.
type Event struct {
	Name      string
	MediaPath string
	StartSec  int
	EndSec    int
}

// GenerateEDL renders a CMX3600 edit decision list that lays the clips back to
// back. Source timecodes refer to the original video.
func GenerateEDL(title string, events []Event) string {
	lines := []string{
		"TITLE: " + SanitizeName(title, 70),
		"FCM: NON-DROP FRAME",
		"",
	}

	record := 0
	for i, ev := range events {
		length := ev.EndSec - ev.StartSec
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "AA/V",
				timecode(ev.StartSec), timecode(ev.EndSec), timecode(record), timecode(record+length)),
			"* FROM CLIP NAME:  "+ev.Name,
			"* MEDIA PATH:  "+ev.MediaPath,
		)
		record += length
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// timecode formats whole seconds as HH:MM:SS:FF; clip bounds never fall mid-frame.
func timecode(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60, 0)
}

func eventsFor(clips []models.Clip, names []string) []Event {
	events := make([]Event, len(clips))
	for i, c := range clips {
		events[i] = Event{
			Name:      c.Title,
			MediaPath: names[i],
			StartSec:  c.StartTime,
			EndSec:    c.EndTime,
		}
	}
	return events
}
