package paramstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	getIn  *ssm.GetParameterInput

	params  map[string]string
	batches [][]string
	listErr error
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.getIn = in
	return f.getOut, f.getErr
}

func (f *fakeAPI) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.batches = append(f.batches, in.Names)
	out := &ssm.GetParametersOutput{}
	for _, n := range in.Names {
		v, ok := f.params[n]
		if !ok {
			out.InvalidParameters = append(out.InvalidParameters, n)
			continue
		}
		out.Parameters = append(out.Parameters, types.Parameter{Name: aws.String(n), Value: aws.String(v)})
	}
	return out, nil
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: aws.String("p"), Value: aws.String(`{"token":"v"}`), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), " p ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"v"}`, v)
	require.Equal(t, "p", aws.ToString(api.getIn.Name))
	require.True(t, aws.ToBool(api.getIn.WithDecryption))
}

func TestGetParameter_Errors(t *testing.T) {
	cases := []struct {
		name    string
		api     *fakeAPI
		param   string
		wantErr string
	}{
		{"missing value", &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}}, "p", "missing value"},
		{"nil output", &fakeAPI{}, "p", "missing value"},
		{"api error", &fakeAPI{getErr: errors.New("boom")}, "p", "boom"},
		{"empty name", &fakeAPI{}, "  ", "name is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := New(tc.api)
			require.NoError(t, err)
			_, err = client.GetParameter(context.Background(), tc.param)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestGetParameters_HappyPathAndOptional(t *testing.T) {
	api := &fakeAPI{params: map[string]string{
		"/bot/bot_config":    "bot_name: X",
		"/bot/open-ai-token": `{"token":"sk"}`,
	}}
	client, err := New(api)
	require.NoError(t, err)

	got, err := client.GetParameters(context.Background(),
		[]string{"/bot/bot_config", "/bot/open-ai-token", "/bot/webhook_token"},
		"/bot/webhook_token",
	)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"/bot/bot_config":    "bot_name: X",
		"/bot/open-ai-token": `{"token":"sk"}`,
	}, got)
}

func TestGetParameters_MissingRequired(t *testing.T) {
	client, err := New(&fakeAPI{params: map[string]string{}})
	require.NoError(t, err)
	_, err = client.GetParameters(context.Background(), []string{"/b", "/a"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parameters not found: /a, /b")
}

func TestGetParameters_Batches(t *testing.T) {
	api := &fakeAPI{params: map[string]string{}}
	var names []string
	for i := 0; i < 23; i++ {
		n := fmt.Sprintf("/p/%02d", i)
		api.params[n] = n
		names = append(names, n)
	}
	client, err := New(api)
	require.NoError(t, err)

	got, err := client.GetParameters(context.Background(), names)
	require.NoError(t, err)
	require.Len(t, got, 23)
	require.Len(t, api.batches, 3)
	require.Len(t, api.batches[0], 10)
	require.Len(t, api.batches[2], 3)
}

func TestGetParameters_Errors(t *testing.T) {
	client, err := New(&fakeAPI{listErr: errors.New("throttled")})
	require.NoError(t, err)
	_, err = client.GetParameters(context.Background(), []string{"/a"})
	require.ErrorContains(t, err, "throttled")

	_, err = client.GetParameters(context.Background(), nil)
	require.Error(t, err)

	_, err = client.GetParameters(context.Background(), []string{" "})
	require.ErrorContains(t, err, "name is required")
}
