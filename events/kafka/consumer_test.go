package kafka

import (
	"testing"
	"time"
)

func TestDecodeRedemptionEvent(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantErr  bool
		wantCode string
		wantAcct string
	}{
		{
			name:     "well-formed event",
			payload:  `{"uniqueCode":"a1b2c3d4","accountId":"acct-1","redeemedAt":"2025-03-10T12:00:00Z"}`,
			wantCode: "a1b2c3d4",
			wantAcct: "acct-1",
		},
		{
			name:     "extra fields ignored",
			payload:  `{"uniqueCode":"a1b2c3d4","accountId":"acct-1","redeemedAt":"2025-03-10T12:00:00Z","adminUser":"kiosk-2","source":"scanner"}`,
			wantCode: "a1b2c3d4",
			wantAcct: "acct-1",
		},
		{
			name:     "loosely typed account id",
			payload:  `{"uniqueCode":"a1b2c3d4","accountId":12345,"redeemedAt":"2025-03-10T12:00:00Z"}`,
			wantCode: "a1b2c3d4",
			wantAcct: "12345",
		},
		{
			name:     "missing timestamp still decodes",
			payload:  `{"uniqueCode":"a1b2c3d4","accountId":"acct-1"}`,
			wantCode: "a1b2c3d4",
			wantAcct: "acct-1",
		},
		{
			name:    "not json",
			payload: `uniqueCode=a1b2c3d4`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeRedemptionEvent([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeRedemptionEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if event.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", event.Code, tt.wantCode)
			}
			if event.AccountID != tt.wantAcct {
				t.Errorf("AccountID = %q, want %q", event.AccountID, tt.wantAcct)
			}
		})
	}
}

func TestDecodeRedemptionEventTimestamp(t *testing.T) {
	event, err := DecodeRedemptionEvent([]byte(`{"uniqueCode":"a1b2c3d4","accountId":"acct-1","redeemedAt":"2025-03-10T12:30:00Z"}`))
	if err != nil {
		t.Fatalf("DecodeRedemptionEvent() error: %v", err)
	}
	want := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	if !event.RedeemedAt.Equal(want) {
		t.Errorf("RedeemedAt = %v, want %v", event.RedeemedAt, want)
	}
}
