package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/sheets"
)

// fileFields is the Drive fields mask for the file-metadata stream.
const fileFields = "id,name,version,createdTime,modifiedTime,teamDriveId,driveId,lastModifyingUser"

// userFields are the lastModifyingUser keys carried into records; the rest
// of the Drive user object (photo link, permission id) is dropped.
var userFields = []string{"kind", "displayName", "emailAddress"}

// fileMetadata is the Drive file response plus its parsed modification time.
type fileMetadata struct {
	record   map[string]any
	modified time.Time
}

// fetchFileMetadata reads the source file's Drive metadata.
func (c *Controller) fetchFileMetadata(ctx context.Context) (*fileMetadata, error) {
	query := url.Values{}
	query.Set("fields", fileFields)

	body, _, err := c.Client.Get(ctx, "files", c.Config.SpreadsheetID, query, "file")
	if err != nil {
		return nil, fmt.Errorf("fetch file metadata: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse file metadata: %w", err)
	}

	// Drive serializes version as a JSON string; the stream schema declares
	// it an integer.
	if v, ok := raw["version"].(string); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse file version %q: %w", v, err)
		}
		raw["version"] = n
	}

	modStr, _ := raw["modifiedTime"].(string)
	modified, err := time.Parse(time.RFC3339, modStr)
	if err != nil {
		return nil, fmt.Errorf("parse file modifiedTime %q: %w", modStr, err)
	}

	if user, ok := raw["lastModifyingUser"].(map[string]any); ok {
		pruned := make(map[string]any, len(userFields))
		for _, k := range userFields {
			if v, ok := user[k]; ok {
				pruned[k] = v
			}
		}
		raw["lastModifyingUser"] = pruned
	}

	return &fileMetadata{record: raw, modified: modified}, nil
}

// sheetMetadataRecord builds the sheet_metadata stream record for one sheet:
// the sheet's grid properties plus spreadsheet context and the per-column
// inference summary.
func (c *Controller) sheetMetadataRecord(meta *sheets.SheetMetadata, columns []sheets.Column) (map[string]any, error) {
	record := make(map[string]any)
	if len(meta.RawProperties) > 0 {
		if err := json.Unmarshal(meta.RawProperties, &record); err != nil {
			return nil, fmt.Errorf("parse sheet properties: %w", err)
		}
	}

	record["spreadsheetId"] = c.Config.SpreadsheetID
	record["sheetUrl"] = fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit#gid=%d",
		c.Config.SpreadsheetID, meta.Properties.SheetID)
	record["columns"] = columns
	return record, nil
}
