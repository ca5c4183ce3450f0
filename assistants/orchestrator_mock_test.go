package assistants_test

import (
	"context"
	"testing"

	"github.com/effective-security/opsdash/mocks/mockllms"
	"github.com/effective-security/opsdash/pkg/llms"
	"github.com/effective-security/opsdash/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRun_CreateInvoiceUnknownClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	o, s := newOrchestrator(t)

	mockLLM := mockllms.NewMockModel(ctrl)
	mockLLM.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	mockLLM.EXPECT().GetName().Return("gpt-4o").AnyTimes()

	gomock.InOrder(
		mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
				assert.Len(t, llms.NewCallOptions(options...).Tools, 15)
				return &llms.ContentResponse{ToolCalls: []llms.ToolCall{
					{ID: "call_1", Name: "create_invoice", Arguments: `{"client_name":"Jane Doe","amount":500}`},
				}}, nil
			}),
		mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, messages, 4)
				assert.Contains(t, messages[3].Content, `No client found matching "Jane Doe". Please create the client first.`)
				return &llms.ContentResponse{Content: "Jane Doe is not a client yet."}, nil
			}),
	)

	res, err := o.Run(context.Background(), mockLLM, []llms.Message{llms.UserMessage("invoice Jane Doe $500")})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe is not a client yet.", res.Content)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, 2, res.LLMCalls)

	invoices, err := s.ListInvoices(context.Background(), store.InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, invoices, 1, "only the seeded invoice")
}
