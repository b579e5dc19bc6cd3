package testdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/skuid/riker/metadata"
)

// Customer is a principal with a store generated identity key
type Customer struct {
	Metadata metadata.Metadata `riker:"tablename=customers"`

	ID             int64    `json:"id" riker:"primary_key,column=id,generated=identity"`
	OrganizationID string   `json:"organization_id" riker:"multitenancy_key,column=organization_id"`
	Name           string   `json:"name" riker:"column=name" validate:"required"`
	Email          string   `json:"email" riker:"column=email"`
	Orders         []*Order `json:"orders"`
}

// Order uses hilo keys, a concurrency token and a store computed timestamp
type Order struct {
	Metadata metadata.Metadata `riker:"tablename=orders,schema=sales"`

	ID             int64             `json:"id" riker:"primary_key,column=id,generated=hilo,sequence=order_ids,block_size=4"`
	OrganizationID string            `json:"organization_id" riker:"multitenancy_key,column=organization_id"`
	CustomerID     int64             `json:"customer_id" riker:"foreign_key,required,related=Customer,column=customer_id,on_delete=cascade"`
	Customer       *Customer         `json:"customer" validate:"-"`
	Status         string            `json:"status" riker:"column=status"`
	Version        int               `json:"version" riker:"concurrency_token,column=version"`
	Notes          map[string]string `json:"notes" riker:"jsonb,column=notes"`
	UpdatedAt      time.Time         `json:"updated_at" riker:"computed=always,column=updated_at"`
}

// OrderLine has a composite key, part of which is its foreign key
type OrderLine struct {
	Metadata metadata.Metadata `riker:"tablename=order_lines,schema=sales"`

	OrderID    int64  `json:"order_id" riker:"primary_key,foreign_key,required,related=Order,column=order_id,on_delete=cascade"`
	LineNumber int    `json:"line_number" riker:"primary_key,column=line_number"`
	Order      *Order `json:"order" validate:"-"`
	Product    string `json:"product" riker:"column=product"`
	Quantity   int    `json:"quantity" riker:"column=quantity"`
}

// Attachment has a uuid key, an optional foreign key and an encrypted column
type Attachment struct {
	Metadata metadata.Metadata `riker:"tablename=attachments"`

	ID      string `json:"id" riker:"primary_key,column=id,generated=uuid"`
	OrderID *int64 `json:"order_id" riker:"foreign_key,related=Order,column=order_id,on_delete=set_null"`
	Order   *Order `json:"order" validate:"-"`
	Name    string `json:"name" riker:"column=name"`
	Secret  string `json:"secret" riker:"encrypted,column=secret"`
}

// Employee references itself
type Employee struct {
	Metadata metadata.Metadata `riker:"tablename=employees"`

	ID        int64     `json:"id" riker:"primary_key,column=id"`
	ManagerID *int64    `json:"manager_id" riker:"foreign_key,related=Manager,column=manager_id"`
	Manager   *Employee `json:"manager" validate:"-"`
	Name      string    `json:"name" riker:"column=name"`
}

// AuditEvent is written once and gets every column but the key from the store
type AuditEvent struct {
	Metadata metadata.Metadata `riker:"tablename=audit_events"`

	ID        int64     `json:"id" riker:"primary_key,column=id,generated=identity"`
	CreatedAt time.Time `json:"created_at" riker:"computed=add,column=created_at"`
}

// Label has a client generated key and nothing else
type Label struct {
	Metadata metadata.Metadata `riker:"tablename=labels"`

	ID   int64  `json:"id" riker:"primary_key,column=id,generated=sequential"`
	Name string `json:"name" riker:"column=name"`
}

// FmtSQL collapses a heredoc SQL statement onto one line
func FmtSQL(sql string) string {
	str := strings.Replace(heredoc.Doc(sql), "\n", " ", -1)
	str = strings.Replace(str, "\t", "", -1)
	return strings.Trim(str, " ")
}

// FmtSQLRegex will covert a multiline/heredoc SQL statement into a REGEX version,
// which is useful for testing mock SQL calls. This allows the user to write out
// the SQL without worrying about tabs, newlines, and escaping characters like
// ., $, ?, (, ). It also anchors the expression at both ends.
func FmtSQLRegex(sql string) string {
	str := FmtSQL(sql)
	str = strings.Replace(str, ".", "\\.", -1)
	str = strings.Replace(str, "$", "\\$", -1)
	str = strings.Replace(str, "?", "\\?", -1)
	str = strings.Replace(str, "+", "\\+", -1)
	str = strings.Replace(str, "*", "\\*", -1)
	str = strings.Replace(str, "(", "\\(", -1)
	str = strings.Replace(str, ")", "\\)", -1)
	return fmt.Sprintf("^%s$", str)
}
