package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

// TemplateCaptioner builds captions from fixed per-language phrases. It never fails.
type TemplateCaptioner struct{}

func NewTemplateCaptioner() *TemplateCaptioner {
	return &TemplateCaptioner{}
}

func (TemplateCaptioner) Name() string { return "template" }

type phrases struct {
	lead  map[string]string // by style
	body  string
	other string
}

var templates = map[string]phrases{
	"pt": {
		lead:  map[string]string{"dinamico": "🔥 Não pisque!", "educativo": "📚 Aprenda em segundos:", "humor": "😂 Impossível não rir:"},
		body:  "Corte %d de %d de \"%s\" (%s–%s).",
		other: "✨ Destaque:",
	},
	"en": {
		lead:  map[string]string{"dinamico": "🔥 Don't blink!", "educativo": "📚 Learn it in seconds:", "humor": "😂 Try not to laugh:"},
		body:  "Clip %d of %d from \"%s\" (%s–%s).",
		other: "✨ Highlight:",
	},
	"es": {
		lead:  map[string]string{"dinamico": "🔥 ¡No parpadees!", "educativo": "📚 Aprende en segundos:", "humor": "😂 Imposible no reír:"},
		body:  "Corte %d de %d de \"%s\" (%s–%s).",
		other: "✨ Destacado:",
	},
}

func (TemplateCaptioner) Caption(_ context.Context, req models.CaptionRequest) (string, error) {
	p, ok := templates[strings.ToLower(req.Language)]
	if !ok {
		p = templates["en"]
	}
	lead, ok := p.lead[strings.ToLower(req.Style)]
	if !ok {
		lead = p.other
	}
	body := fmt.Sprintf(p.body, req.Index+1, max(req.Total, 1), req.JobTitle, timestamp(req.StartTime), timestamp(req.EndTime))
	return lead + " " + body, nil
}

func timestamp(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

var _ models.Captioner = (*TemplateCaptioner)(nil)
