package domain

// Shipment type, inferred from a project's system tags.
const (
	ShipmentImport = "IMPORT"
	ShipmentExport = "EXPORT"
)

// Task categories, in keyword-match priority order.
const (
	CategoryDocumentation      = "DOCUMENTATION"
	CategoryCustomsDeclaration = "CUSTOMS_DECLARATION"
	CategoryPayment            = "PAYMENT"
	CategoryInspection         = "INSPECTION"
	CategoryRelease            = "RELEASE"
	CategoryDelivery           = "DELIVERY"
	CategoryGeneral            = "GENERAL"
)

// Categories lists every task category.
var Categories = []string{
	CategoryDocumentation,
	CategoryCustomsDeclaration,
	CategoryPayment,
	CategoryInspection,
	CategoryRelease,
	CategoryDelivery,
	CategoryGeneral,
}

// User roles.
const (
	RoleAdmin      = "ADMIN"
	RoleManager    = "MANAGER"
	RoleClerk      = "CLERK"
	RoleAgent      = "AGENT"
	RoleAccountant = "ACCOUNTANT"
)

// Statuses shared by projects, stages and tasks.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusOnHold     = "ON_HOLD"
	StatusCancelled  = "CANCELLED"
)

// Priorities.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// TrackingStageTypes is the fixed 11-step shipment lifecycle, in creation
// order. The ordering never varies per shipment type.
var TrackingStageTypes = []string{
	"PRE_ARRIVAL_DOCS",
	"VESSEL_ARRIVAL",
	"CUSTOMS_DECLARATION",
	"CUSTOMS_PAYMENT",
	"INSPECTION",
	"PORT_FEES",
	"QUALITY_STANDARDS",
	"RELEASE",
	"LOADING",
	"IN_TRANSIT",
	"DELIVERED",
}

type Project struct {
	ID              string   `json:"id"`
	CustomerName    string   `json:"customer_name"`
	BLAWBNumber     string   `json:"bl_awb_number,omitempty"`
	Systems         []string `json:"systems"`
	ActivitiesJSON  *string  `json:"activities_json,omitempty"`
	Team            []string `json:"team,omitempty"`
	TeamLeadID      *string  `json:"team_lead_id,omitempty"`
	OriginPort      string   `json:"origin_port,omitempty"`
	DestinationPort string   `json:"destination_port,omitempty"`
	StartDate       *string  `json:"start_date,omitempty" format:"date-time"`
	EndDate         *string  `json:"end_date,omitempty" format:"date-time"`
	Status          string   `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED,ON_HOLD,CANCELLED"`
	Priority        string   `json:"priority" enum:"LOW,MEDIUM,HIGH,URGENT"`
	CustomerID      *string  `json:"customer_id,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

type Shipment struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	TrackingNumber string  `json:"tracking_number"`
	TrackingSlug   string  `json:"tracking_slug"`
	ShipmentNumber string  `json:"shipment_number"`
	Type           string  `json:"type" enum:"IMPORT,EXPORT"`
	Status         string  `json:"status"`
	Consignor      string  `json:"consignor,omitempty"`
	Consignee      string  `json:"consignee,omitempty"`
	ArrivalDate    *string `json:"arrival_date,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type TrackingStage struct {
	ID                  string  `json:"id"`
	ShipmentID          string  `json:"shipment_id"`
	StageType           string  `json:"stage_type"`
	Seq                 int     `json:"seq"`
	Status              string  `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED,ON_HOLD,CANCELLED"`
	EstimatedStart      *string `json:"estimated_start,omitempty" format:"date-time"`
	EstimatedCompletion *string `json:"estimated_completion,omitempty" format:"date-time"`
	StartedAt           *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt         *string `json:"completed_at,omitempty" format:"date-time"`
	PaymentRequired     bool    `json:"payment_required"`
	PaymentCompleted    bool    `json:"payment_completed"`
}

// LinkedActivity records which activity template a task was generated from.
type LinkedActivity struct {
	ProjectID    string `json:"projectId"`
	ShipmentType string `json:"shipmentType"`
	Stage        string `json:"stage"`
	Substage     string `json:"substage,omitempty"`
	Task         string `json:"task"`
}

type Task struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	Title          string          `json:"title"`
	Category       string          `json:"category" enum:"DOCUMENTATION,CUSTOMS_DECLARATION,PAYMENT,INSPECTION,RELEASE,DELIVERY,GENERAL"`
	Status         string          `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED,ON_HOLD,CANCELLED"`
	Priority       string          `json:"priority" enum:"LOW,MEDIUM,HIGH,URGENT"`
	StageType      *string         `json:"stage_type,omitempty"`
	AssignedTo     []string        `json:"assigned_to,omitempty"`
	DueDate        *string         `json:"due_date,omitempty" format:"date-time"`
	LinkedActivity *LinkedActivity `json:"linked_activity,omitempty"`
	AutoGenerated  bool            `json:"auto_generated"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
	UpdatedAt      string          `json:"updated_at" format:"date-time"`
}

// AssignmentRule overrides default assignee resolution for one category.
// Exactly one of UserID or RoleTarget is expected to be set.
type AssignmentRule struct {
	ID         string  `json:"id"`
	Category   string  `json:"category" enum:"DOCUMENTATION,CUSTOMS_DECLARATION,PAYMENT,INSPECTION,RELEASE,DELIVERY,GENERAL"`
	UserID     *string `json:"user_id,omitempty"`
	RoleTarget *string `json:"role_target,omitempty" enum:"ADMIN,MANAGER,CLERK,AGENT,ACCOUNTANT"`
	Priority   int     `json:"priority"`
	Active     bool    `json:"active"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role" enum:"ADMIN,MANAGER,CLERK,AGENT,ACCOUNTANT"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// UserLoad pairs a user with their live PENDING+IN_PROGRESS task count.
type UserLoad struct {
	User User `json:"user"`
	Load int  `json:"load"`
}

// Assignment is one entry of the per-task cascade assignment trace.
type Assignment struct {
	TaskID  string  `json:"task_id"`
	Title   string  `json:"title"`
	UserID  *string `json:"user_id,omitempty"`
	Reason  string  `json:"reason"`
	Applied bool    `json:"applied"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ParseStatus maps a free-form status string onto the known set, falling
// back to PENDING rather than erroring.
func ParseStatus(s string) string {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOnHold, StatusCancelled:
		return s
	}
	return StatusPending
}

// ParsePriority maps a free-form priority string onto the known set, falling
// back to MEDIUM rather than erroring.
func ParsePriority(s string) string {
	switch s {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return s
	}
	return PriorityMedium
}
