package lark

import (
	"context"
	"fmt"
	"net/url"

	"hubtask/models"
)

type Table struct {
	TableID string `json:"table_id"`
	Name    string `json:"name"`
}

// Record is a Bitable row. Field values keep their JSON shapes: strings,
// float64 numbers, bools, objects and arrays.
type Record struct {
	RecordID string                 `json:"record_id"`
	Fields   map[string]interface{} `json:"fields"`
}

// ListTables lists every table of a Base.
func (c *Client) ListTables(ctx context.Context, baseID string) ([]Table, error) {
	path := fmt.Sprintf("/bitable/v1/apps/%s/tables", url.PathEscape(baseID))
	return FetchAll[Table](ctx, c, "bitable.tables", path, nil)
}

// GetTable reads one table's metadata.
func (c *Client) GetTable(ctx context.Context, baseID, tableID string) (*Table, error) {
	path := fmt.Sprintf("/bitable/v1/apps/%s/tables/%s", url.PathEscape(baseID), url.PathEscape(tableID))

	var resp Response[struct {
		Table Table `json:"table"`
	}]
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &models.UpstreamError{Code: resp.Code, Msg: resp.Msg}
	}
	table := resp.Data.Table
	if table.TableID == "" {
		table.TableID = tableID
	}
	return &table, nil
}

// ListRecords pages through every record of a table.
func (c *Client) ListRecords(ctx context.Context, baseID, tableID string) ([]Record, error) {
	path := fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/records", url.PathEscape(baseID), url.PathEscape(tableID))
	return FetchAll[Record](ctx, c, "bitable.records", path, nil)
}
