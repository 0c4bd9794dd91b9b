package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const DefaultValueInputOption = "USER_ENTERED"

// GoogleClient implements ValuesClient on the Sheets v4 API.
type GoogleClient struct {
	svc        *gsheets.Service
	valueInput string
}

// NewGoogleClient authenticates with a service-account key file. Extra
// options are appended, which lets tests point the client at a fake server.
func NewGoogleClient(ctx context.Context, credentialsFile, valueInput string, opts ...option.ClientOption) (*GoogleClient, error) {
	var all []option.ClientOption
	if credentialsFile != "" {
		all = append(all,
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(gsheets.SpreadsheetsScope),
		)
	}
	all = append(all, opts...)
	svc, err := gsheets.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	if valueInput == "" {
		valueInput = DefaultValueInputOption
	}
	return &GoogleClient{svc: svc, valueInput: valueInput}, nil
}

func (c *GoogleClient) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := c.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (c *GoogleClient) Update(ctx context.Context, spreadsheetID, rng string, values [][]any) (int64, error) {
	resp, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &gsheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         values,
	}).ValueInputOption(c.valueInput).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	return resp.UpdatedRows, nil
}
