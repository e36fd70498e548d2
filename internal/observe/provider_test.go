package observe

import (
	"context"
	"runtime"
	"slices"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), ProviderConfig{
		ServiceVersion:  "1.2.3",
		Backend:         "fmod",
		Fallbacks:       []string{"sim", "null"},
		InvariantPolicy: "strict",
	})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	set := res.Set()

	want := map[attribute.Key]string{
		semconv.ServiceNameKey:           "atld",
		semconv.ServiceVersionKey:        "1.2.3",
		semconv.ProcessRuntimeVersionKey: runtime.Version(),
		AttrBackend:                      "fmod",
		AttrInvariantPolicy:              "strict",
	}
	for key, value := range want {
		got, ok := set.Value(key)
		if !ok {
			t.Errorf("%s: missing", key)
			continue
		}
		if got.AsString() != value {
			t.Errorf("%s = %q, want %q", key, got.AsString(), value)
		}
	}
	fallbacks, ok := set.Value(AttrFallbacks)
	if !ok || !slices.Equal(fallbacks.AsStringSlice(), []string{"sim", "null"}) {
		t.Errorf("%s = %v, want [sim null]", AttrFallbacks, fallbacks.AsStringSlice())
	}
}

func TestNewResource_OmitsUnsetBackend(t *testing.T) {
	res, err := newResource(context.Background(), ProviderConfig{ServiceName: "atld-test"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	set := res.Set()
	if got, _ := set.Value(semconv.ServiceNameKey); got.AsString() != "atld-test" {
		t.Errorf("service.name = %q", got.AsString())
	}
	for _, key := range []attribute.Key{AttrBackend, AttrFallbacks, AttrInvariantPolicy} {
		if set.HasValue(key) {
			t.Errorf("%s should be unset", key)
		}
	}
}
