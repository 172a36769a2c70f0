package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sweetline/confectioner/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZero returns nil if n is zero, otherwise returns n.
func nilIfZero(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(sc scanner) (models.User, error) {
	var u models.User
	var firstName, lastName, gender, phone, email sql.NullString
	var age sql.NullInt64
	err := sc.Scan(&u.ID, &u.Platform, &u.PlatformUserID, &firstName, &lastName,
		&age, &gender, &phone, &email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Age = int(age.Int64)
	u.Gender = models.Gender(gender.String)
	u.Phone = phone.String
	u.Email = email.String
	return u, nil
}

func scanOrder(sc scanner) (models.Order, error) {
	var o models.Order
	var ingredientsJSON, deliveryDate, imageURL sql.NullString
	var weight, price sql.NullFloat64
	err := sc.Scan(&o.ID, &o.UserID, &o.Platform, &o.Description, &weight, &ingredientsJSON,
		&deliveryDate, &o.Status, &price, &imageURL, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Weight = weight.Float64
	o.Price = price.Float64
	o.DeliveryDate = deliveryDate.String
	o.ImageURL = imageURL.String
	if ingredientsJSON.Valid && ingredientsJSON.String != "" {
		if err := json.Unmarshal([]byte(ingredientsJSON.String), &o.Ingredients); err != nil {
			return o, fmt.Errorf("failed to decode order ingredients: %w", err)
		}
	}
	return o, nil
}

func scanOrderRows(rows *sql.Rows) (models.Order, error) {
	o, err := scanOrder(rows)
	if err != nil {
		return o, fmt.Errorf("scan order failed: %w", err)
	}
	return o, nil
}

func scanChat(sc scanner) (models.ChatRecord, error) {
	var c models.ChatRecord
	var response, aiModel sql.NullString
	err := sc.Scan(&c.ID, &c.UserID, &c.Platform, &c.Message, &response, &aiModel, &c.Timestamp)
	if err != nil {
		return c, err
	}
	c.Response = response.String
	c.AIModel = aiModel.String
	return c, nil
}

func scanChatRows(rows *sql.Rows) (models.ChatRecord, error) {
	c, err := scanChat(rows)
	if err != nil {
		return c, fmt.Errorf("scan chat record failed: %w", err)
	}
	return c, nil
}
