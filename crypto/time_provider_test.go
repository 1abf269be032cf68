package crypto

import (
	"testing"
	"time"
)

func TestTimeProvider_Default(t *testing.T) {
	t.Parallel()

	// Test DefaultTimeProvider
	dp := DefaultTimeProvider{}

	before := time.Now()
	now := dp.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Error("DefaultTimeProvider.Now() should return current time")
	}

	// Test Since
	pastTime := time.Now().Add(-time.Hour)
	since := dp.Since(pastTime)
	if since < time.Hour || since > time.Hour+time.Second {
		t.Errorf("DefaultTimeProvider.Since() returned unexpected duration: %v", since)
	}
}

func TestTimeProvider_Package_Level(t *testing.T) {
	// Not parallel due to modifying package-level state

	// Save original and restore after test
	original := GetDefaultTimeProvider()
	defer SetDefaultTimeProvider(original)

	// Test setting a mock provider
	mockTime := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockTimeProvider(mockTime)
	SetDefaultTimeProvider(mock)

	provider := GetDefaultTimeProvider()
	if provider.Now() != mockTime {
		t.Errorf("Expected mock time %v, got %v", mockTime, provider.Now())
	}

	// Test advancing time
	mock.Advance(time.Hour)
	expected := mockTime.Add(time.Hour)
	if provider.Now() != expected {
		t.Errorf("Expected %v after advance, got %v", expected, provider.Now())
	}

	// Test resetting to nil (should restore default)
	SetDefaultTimeProvider(nil)
	provider = GetDefaultTimeProvider()
	_, ok := provider.(DefaultTimeProvider)
	if !ok {
		t.Error("SetDefaultTimeProvider(nil) should restore DefaultTimeProvider")
	}
}
