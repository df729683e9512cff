package market

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleConsumer Role = "consumer"
	RoleFarmer   Role = "farmer"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Farmer struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	FarmName  string    `json:"farm_name"`
	County    string    `json:"county"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Product struct {
	ID          int64           `json:"id"`
	FarmerID    int64           `json:"farmer_id"`
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"` // kg, piece, bunch
	Stock       int             `json:"stock"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CartLine carries the product fields the cart page and checkout both need,
// read in the same query as the line itself so a snapshot is consistent.
type CartLine struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"user_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	FarmerID    int64           `json:"farmer_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Unit        string          `json:"unit"`
	Qty         int             `json:"quantity"`
	Stock       int             `json:"stock"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentPendingStatus PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentFailedStatus  PaymentStatus = "failed"
)

type Order struct {
	ID                   int64           `json:"id"`
	UserID               string          `json:"user_id"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	Status               Status          `json:"status"`
	PaymentStatus        PaymentStatus   `json:"payment_status"`
	PaymentMethod        string          `json:"payment_method,omitempty"`
	PaymentReference     string          `json:"payment_reference,omitempty"`
	DeliveryAddress      string          `json:"delivery_address"`
	DeliveryPhone        string          `json:"delivery_phone"`
	DeliveryInstructions string          `json:"delivery_instructions,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// OrderItem freezes quantity and price at purchase time; later product
// price edits must not change historical orders.
type OrderItem struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	FarmerID   int64           `json:"farmer_id"`
	Qty        int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type DeliveryInfo struct {
	Address      string
	Phone        string
	Instructions string
	Method       string
}

type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

func (s AttemptStatus) Terminal() bool {
	return s == AttemptSucceeded || s == AttemptFailed
}

type PaymentAttempt struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Reference  string          `json:"reference"`
	Amount     decimal.Decimal `json:"amount"`
	Phone      string          `json:"phone"`
	Status     AttemptStatus   `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

type PaymentOutcome struct {
	Success bool
	Detail  string
}

// PaymentResolution reports what resolving a reference did. AlreadyResolved
// is true when the attempt was terminal before the call; the rest of the
// fields then describe the earlier resolution, not a new one.
type PaymentResolution struct {
	Order           Order
	Attempt         PaymentAttempt
	AlreadyResolved bool
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCommitted ReservationStatus = "COMMITTED"
)

type Reservation struct {
	ID        int64             `json:"id"`
	OrderID   int64             `json:"order_id"`
	ProductID int64             `json:"product_id"`
	Qty       int               `json:"qty"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}
