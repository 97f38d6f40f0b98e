// Package export writes the grouped catalog as a spreadsheet for manual review.
package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
)

const (
	FabricsSheet = "fabrics"
	GroupsSheet  = "groups"
)

var fabricHeaders = []string{
	"group", "id", "name", "material", "texture", "colors",
	"embellishments", "embellishment_description", "image_main", "degraded", "notes",
}

// WriteGroupsXLSX writes one row per record, ordered by group, plus a sheet listing each group
// with its size.
func WriteGroupsXLSX(groups fabric.Groups, outputPath string) error {
	if outputPath == "" {
		return errors.New("WriteGroupsXLSX: outputPath is empty")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), FabricsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(GroupsSheet); err != nil {
		return err
	}

	for i, h := range fabricHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(FabricsSheet, cell, h)
	}
	for i, h := range []string{"group", "records"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(GroupsSheet, cell, h)
	}

	r := 2
	for gi, g := range groups.All() {
		set := func(sheet string, row, col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, value)
		}
		set(GroupsSheet, gi+2, 1, g.Key)
		set(GroupsSheet, gi+2, 2, len(g.Records))

		for _, rec := range g.Records {
			set(FabricsSheet, r, 1, g.Key)
			set(FabricsSheet, r, 2, rec.ID)
			set(FabricsSheet, r, 3, rec.Name)
			set(FabricsSheet, r, 4, rec.Material)
			set(FabricsSheet, r, 5, rec.Texture)
			set(FabricsSheet, r, 6, strings.Join(rec.Colors, ", "))
			set(FabricsSheet, r, 7, strings.Join(rec.Embellishments, ", "))
			set(FabricsSheet, r, 8, rec.EmbellishmentDescription)
			set(FabricsSheet, r, 9, rec.ImageMain)
			set(FabricsSheet, r, 10, rec.Degraded)
			set(FabricsSheet, r, 11, rec.Notes)
			r++
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
