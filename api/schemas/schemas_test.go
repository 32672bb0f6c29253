// File: api/schemas/schemas_test.go
package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusPayloadStep(t *testing.T) {
	testCases := []struct {
		name     string
		payload  StatusPayload
		expected WorkflowStep
	}{
		{"nil payload defaults to initial step", nil, StepCollectPersonalInfo},
		{"missing key defaults to initial step", StatusPayload{"locale": "en-US"}, StepCollectPersonalInfo},
		{"empty step defaults to initial step", StatusPayload{"currentStep": ""}, StepCollectPersonalInfo},
		{"explicit step", StatusPayload{"currentStep": "pending"}, StepPending},
		{"service defined step passes through", StatusPayload{"currentStep": "docUpload"}, WorkflowStep("docUpload")},
		{"non-string step ignored", StatusPayload{"currentStep": 42}, StepCollectPersonalInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.payload.Step())
		})
	}
}

func TestStatusPayloadLocale(t *testing.T) {
	assert.Equal(t, "", StatusPayload(nil).Locale())
	assert.Equal(t, "", StatusPayload{}.Locale())
	assert.Equal(t, "de-DE", StatusPayload{"locale": "de-DE"}.Locale())
}

func TestSnapshotSubmitReady(t *testing.T) {
	testCases := []struct {
		name     string
		snap     FormReadySnapshot
		expected bool
	}{
		{
			name:     "text only school passes",
			snap:     FormReadySnapshot{SchoolText: "Acme University", ConsentChecked: true},
			expected: true,
		},
		{
			name:     "id only school passes",
			snap:     FormReadySnapshot{SchoolID: "1234", ConsentChecked: true},
			expected: true,
		},
		{
			name:     "empty school fails",
			snap:     FormReadySnapshot{ConsentChecked: true},
			expected: false,
		},
		{
			name:     "unchecked consent fails",
			snap:     FormReadySnapshot{SchoolID: "1234"},
			expected: false,
		},
		{
			name:     "invalid fields fail",
			snap:     FormReadySnapshot{SchoolID: "1234", ConsentChecked: true, AriaInvalidCount: 2},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.snap.SubmitReady())
		})
	}
}

func TestOrgSelectionOutcomeConfirmed(t *testing.T) {
	assert.False(t, OrgSelectionOutcome{}.Confirmed())
	assert.False(t, OrgSelectionOutcome{Confirmation: OrgNotSelected}.Confirmed())
	assert.True(t, OrgSelectionOutcome{Confirmation: OrgConfirmedContainer}.Confirmed())
	assert.True(t, OrgSelectionOutcome{Confirmation: OrgConfirmedHiddenID, OrgID: "99"}.Confirmed())
}
