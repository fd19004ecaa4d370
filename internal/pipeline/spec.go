package pipeline

import (
	"mime"
	"net/url"
	"path"
	"slices"
	"strings"
	"unicode/utf8"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

// normalizeParams fills defaults and rejects values the renderer cannot take.
func normalizeParams(p models.JobParameters) (models.JobParameters, error) {
	p.Resolution = strings.ToLower(strings.TrimSpace(p.Resolution))
	if p.Resolution == "" {
		p.Resolution = models.DefaultResolution
	}
	if !slices.Contains(models.Resolutions, p.Resolution) {
		return p, errors.ValidationField("resolution", "unsupported resolution: "+p.Resolution)
	}

	p.Transition = strings.ToLower(strings.TrimSpace(p.Transition))
	if p.Transition == "" {
		p.Transition = models.DefaultTransition
	}
	if !slices.Contains(models.Transitions, p.Transition) {
		return p, errors.ValidationField("transition", "unsupported transition: "+p.Transition)
	}

	if p.DesiredLength < 0 {
		return p, errors.ValidationField("desired_length", "desired_length must not be negative")
	}
	if utf8.RuneCountInString(p.CaptionText) > models.MaxCaptionLength {
		return p, errors.ValidationField("caption_text", "caption_text is too long")
	}
	p.MusicRef = strings.TrimSpace(p.MusicRef)
	return p, nil
}

// sanitizeMusic swaps a known-bad or malformed music URL for the default.
// An empty ref means no music and is left alone.
func sanitizeMusic(ref, fallback string, bad []string) string {
	if ref == "" {
		return ""
	}
	if slices.Contains(bad, ref) {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fallback
	}
	return ref
}

// clipLength is min(source, requested) clamped to max. A zero source or
// requested length means "unknown" and defers to the other value; zero max
// means no ceiling.
func clipLength(sourceSeconds, requested, max int) int {
	n := requested
	if sourceSeconds > 0 && (n == 0 || sourceSeconds < n) {
		n = sourceSeconds
	}
	if max > 0 && (n == 0 || n > max) {
		n = max
	}
	return n
}

func (o *Orchestrator) buildSpec(job *models.Job, asset *models.Asset, sourceURL string) ports.RenderSpec {
	p := job.Parameters
	return ports.RenderSpec{
		JobID:       job.ID,
		Kind:        job.Kind,
		SourceURL:   sourceURL,
		ClipSeconds: clipLength(asset.DurationSeconds, p.DesiredLength, o.cfg.MaxClipSeconds),
		Transition:  p.Transition,
		CaptionText: p.CaptionText,
		MusicURL:    sanitizeMusic(p.MusicRef, o.cfg.DefaultMusicURL, o.cfg.BadMusicURLs),
		Resolution:  p.Resolution,
	}
}

// resultKey is the deterministic storage key of a job's rendered output.
func resultKey(job *models.Job, ext string) string {
	return "renders/" + job.Kind + "/" + job.OwnerID + "/" + job.ID + ext
}

// resultExt picks the output extension from the content type, then the
// URL path, then falls back to .mp4.
func resultExt(contentType, resultURL string) string {
	if ct, _, err := mime.ParseMediaType(contentType); err == nil {
		switch ct {
		case "video/mp4":
			return ".mp4"
		case "video/webm":
			return ".webm"
		case "video/quicktime":
			return ".mov"
		case "image/gif":
			return ".gif"
		}
	}
	if u, err := url.Parse(resultURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return strings.ToLower(ext)
		}
	}
	return ".mp4"
}
