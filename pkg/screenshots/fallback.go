package screenshots

import (
	"context"
	"log/slog"
)

type fallbackStrategy struct {
	primary  Strategy
	fallback Strategy
	logger   *slog.Logger
}

// WithFallback runs fallback exactly once whenever primary fails, within the
// same call. A cancelled context is returned without falling back.
func WithFallback(primary, fallback Strategy, logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackStrategy{primary: primary, fallback: fallback, logger: logger}
}

func (f *fallbackStrategy) Kind() Kind { return f.primary.Kind() }

func (f *fallbackStrategy) Capture(ctx context.Context, target Target) (Image, error) {
	img, err := f.primary.Capture(ctx, target)
	if err == nil {
		return img, nil
	}
	if ctx.Err() != nil {
		return Image{}, err
	}
	f.logger.Warn("primary capture strategy failed, falling back",
		"primary", f.primary.Kind(),
		"fallback", f.fallback.Kind(),
		"reason", Reason(err),
		"error", err,
	)
	img, fallbackErr := f.fallback.Capture(ctx, target)
	if fallbackErr != nil {
		return Image{}, &FallbackError{Primary: err, Fallback: fallbackErr}
	}
	return img, nil
}

// ForCapabilities builds the pipeline suited to the detected environment.
func ForCapabilities(caps Capabilities, logger *slog.Logger) Strategy {
	if caps.PreferredStrategy == KindBitmap {
		return WithFallback(BitmapGrab{}, CanvasSampler{}, logger)
	}
	return CanvasSampler{}
}
