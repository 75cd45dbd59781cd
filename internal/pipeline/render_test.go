package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/kjstillabower/weather-moment-nft/internal/frame"
	"github.com/kjstillabower/weather-moment-nft/internal/imagegen"
	"github.com/kjstillabower/weather-moment-nft/internal/models"
	"github.com/kjstillabower/weather-moment-nft/internal/prompt"
	"github.com/kjstillabower/weather-moment-nft/internal/validation"
)

// TestRender_Unframed verifies a plain render skips wallet analysis.
func TestRender_Unframed(t *testing.T) {
	f := newFixture()
	out, err := f.pipeline().Render(context.Background(), RenderRequest{
		Prompt: "a poster", Fields: prompt.FieldsFromSnapshot(parisSnap), Width: 256, Height: 384,
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if string(out.Image) != "ai-bytes" || out.Source != models.SourceAI || out.Framed {
		t.Errorf("Render() = %+v", out)
	}
	if f.wallet.calls != 0 {
		t.Errorf("wallet analyzed %d times without a frame", f.wallet.calls)
	}
	if f.images.last.Width != 256 || f.images.last.Height != 384 {
		t.Errorf("image request = %+v", f.images.last)
	}
}

// TestRender_DefaultSize verifies zero dimensions default to 512x768.
func TestRender_DefaultSize(t *testing.T) {
	f := newFixture()
	if _, err := f.pipeline().Render(context.Background(), RenderRequest{Prompt: "a poster"}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if f.images.last.Width != 512 || f.images.last.Height != 768 {
		t.Errorf("image request = %+v", f.images.last)
	}
}

// TestRender_FramedFallbackUsesTraits verifies a framed fallback picks its style from wallet traits.
func TestRender_FramedFallbackUsesTraits(t *testing.T) {
	f := newFixture()
	fields := prompt.FieldsFromSnapshot(parisSnap)
	f.images.result = imagegen.Fallback(fields, 512, 768, imagegen.ReasonHTTPStatus)

	out, err := f.pipeline().Render(context.Background(), RenderRequest{
		Prompt: "a poster", Fields: fields, Address: testAddr, UseFrame: true,
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !out.Framed || out.ContentType != models.ContentTypePNG || out.FrameStyle != frame.StyleMinimal {
		t.Errorf("Render() framed = %v ct = %s style = %s", out.Framed, out.ContentType, out.FrameStyle)
	}
	if out.FallbackReason != string(imagegen.ReasonHTTPStatus) {
		t.Errorf("FallbackReason = %q", out.FallbackReason)
	}
}

// TestRender_InputErrors verifies bad render requests never reach the image generator.
func TestRender_InputErrors(t *testing.T) {
	tests := []struct {
		name string
		req  RenderRequest
		want error
	}{
		{"blank prompt", RenderRequest{Prompt: "  "}, ErrPromptEmpty},
		{"frame without address", RenderRequest{Prompt: "p", UseFrame: true}, validation.ErrAddressEmpty},
		{"bad style", RenderRequest{Prompt: "p", FrameStyle: "baroque"}, validation.ErrStyleInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.pipeline().Render(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Render() error = %v, want %v", err, tt.want)
			}
			if f.images.calls != 0 {
				t.Errorf("image calls = %d", f.images.calls)
			}
		})
	}
}
