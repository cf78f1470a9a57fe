package catalog

import (
	"fmt"
	"strings"

	"github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
)

// Redshift renders SQL for Amazon Redshift and loads staging tables with COPY from S3.
type Redshift struct{}

func (Redshift) Name() string { return constants.DialectRedshift }

func (Redshift) QuoteIdentifier(name string) string { return helper.QuoteIdentifier(name) }

func (Redshift) ResolvesJsonPaths() bool { return false }

func (d Redshift) columnDef(t *Table, c Column) string {
	sb := strings.Builder{}
	sb.WriteString(d.QuoteIdentifier(c.Name) + " " + string(c.Type))
	if c.Identity {
		sb.WriteString(" GENERATED BY DEFAULT AS IDENTITY(0,1)")
	}
	if c.DistKey {
		sb.WriteString(" DISTKEY")
	}
	if c.SortKey {
		sb.WriteString(" SORTKEY")
	}
	if c.NotNull || c.Identity {
		sb.WriteString(" NOT NULL")
	}
	if c.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	return sb.String()
}

func (Redshift) tableSuffix(t *Table) string { return "" }

func (Redshift) datePart(p DatePart, expr string) string {
	return fmt.Sprintf("EXTRACT(%v FROM %v)", p, expr)
}

func (d Redshift) CreateTable(t *Table) []string { return []string{renderCreateTable(d, t)} }

func (d Redshift) DropTable(t *Table) []string { return []string{renderDropTable(d, t)} }

func (d Redshift) DeleteAll(t *Table) string { return renderDeleteAll(d, t) }

func (d Redshift) InsertSelect(t *Table) (string, error) { return renderInsertSelect(d, t) }

func (d Redshift) CountRows(t *Table) string { return renderCountRows(d, t) }

func (d Redshift) CountNulls(t *Table, column string) string { return renderCountNulls(d, t, column) }

// BulkLoad returns a COPY statement that reads JSON from S3 using the IAM role in src.
// Staging tables that map fields with a JSONPaths document require src.JsonPaths.
func (d Redshift) BulkLoad(t *Table, src LoadSource) ([]string, error) {
	if t.Load == nil {
		return nil, fmt.Errorf("table %q is not a staging table", t.Name)
	}
	if src.URI == "" {
		return nil, fmt.Errorf("missing source URI for table %q", t.Name)
	}
	if src.IamRoleArn == "" {
		return nil, fmt.Errorf("missing IAM role ARN required to COPY into table %q", t.Name)
	}
	format := "auto"
	if t.Load.UseJsonPaths {
		if src.JsonPaths == "" {
			return nil, fmt.Errorf("missing JSONPaths URI required to COPY into table %q", t.Name)
		}
		format = src.JsonPaths
	}
	region := src.Region
	if region == "" {
		region = constants.DefaultRegion
	}
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("COPY %v FROM %v\n", d.QuoteIdentifier(t.Name), helper.QuoteLiteral(src.URI)))
	sb.WriteString(fmt.Sprintf("CREDENTIALS %v\n", helper.QuoteLiteral("aws_iam_role="+src.IamRoleArn)))
	sb.WriteString(fmt.Sprintf("REGION %v\n", helper.QuoteLiteral(region)))
	sb.WriteString(fmt.Sprintf("FORMAT AS JSON %v", helper.QuoteLiteral(format)))
	if t.HasEpochMillis() {
		sb.WriteString("\nTIMEFORMAT AS 'epochmillisecs'")
	}
	return []string{sb.String()}, nil
}
