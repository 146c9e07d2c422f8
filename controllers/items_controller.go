// controllers/items_controller.go
package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"lablink/app"
	"lablink/audit"
	"lablink/db"
	"lablink/models"
	"lablink/qr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ItemController struct{ *Srv }

func NewItemController(s *Srv) *ItemController { return &ItemController{Srv: s} }

// 管理员创建物品
func (ic *ItemController) CreateItem(c *gin.Context) {
	var in struct {
		Code             string  `json:"code" binding:"required"`
		Name             string  `json:"name" binding:"required"`
		DepartmentID     string  `json:"departmentId" binding:"required,uuid"`
		CategoryID       *string `json:"categoryId" binding:"omitempty,uuid"`
		TotalQuantity    int     `json:"totalQuantity" binding:"gte=0"`
		ReorderThreshold int     `json:"reorderThreshold" binding:"gte=0"`
		IsBorrowable     *bool   `json:"isBorrowable"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		ic.badRequest(c, err)
		return
	}
	it := &models.Item{
		ID:               uuid.NewString(),
		Code:             strings.TrimSpace(in.Code),
		Name:             strings.TrimSpace(in.Name),
		DepartmentID:     in.DepartmentID,
		CategoryID:       in.CategoryID,
		TotalQuantity:    in.TotalQuantity,
		ReorderThreshold: in.ReorderThreshold,
		IsBorrowable:     in.IsBorrowable == nil || *in.IsBorrowable,
	}
	ctx := c.Request.Context()
	if err := ic.Repo.CreateItem(ctx, it); err != nil {
		ic.fail(c, err)
		return
	}
	ic.Audit.RecordBestEffort(ctx, itemAudit(actor(c), "item.created", it.ID, it))
	c.JSON(http.StatusCreated, it)
}

// 库存视图（含逾期数）
func (ic *ItemController) ListItems(c *gin.Context) {
	page, size := pageParams(c)
	res, err := ic.Repo.ListItemsWithStock(c.Request.Context(), db.AdminItemsQuery{
		Q:            c.Query("q"),
		Status:       c.Query("status"),
		DepartmentID: c.Query("departmentId"),
		Now:          ic.Now(),
		Page:         page,
		Size:         size,
	})
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (ic *ItemController) GetItem(c *gin.Context) {
	it, err := ic.Repo.FindItemByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// 登记序列号单元
func (ic *ItemController) AddUnits(c *gin.Context) {
	var in struct {
		Serials []string `json:"serials" binding:"required,min=1,dive,required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		ic.badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	itemID := c.Param("id")
	units, err := ic.Repo.AddUnits(ctx, itemID, in.Serials)
	if err != nil {
		ic.fail(c, err)
		return
	}
	ic.Audit.RecordBestEffort(ctx, itemAudit(actor(c), "item.units_added", itemID, in.Serials))
	c.JSON(http.StatusCreated, app.H{"items": units})
}

// ArchiveUnit retires an available unit and drops it from the item's totals.
func (ic *ItemController) ArchiveUnit(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := ic.Repo.FindUnitByID(ctx, c.Param("id"))
	if err != nil {
		ic.fail(c, err)
		return
	}
	if err := ic.Repo.ArchiveUnit(ctx, u.ID); err != nil {
		ic.fail(c, err)
		return
	}
	ic.Audit.RecordBestEffort(ctx, audit.Entry{
		ActorID:    actor(c),
		Action:     "unit.archived",
		EntityType: "item_unit",
		EntityID:   u.ID,
		Old:        app.H{"status": u.Status},
		New:        app.H{"status": models.UnitArchived, "itemId": u.ItemID, "serial": u.Serial},
	})
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// 扫码记录，?limit= 默认 50
func (ic *ItemController) Scans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	scans, err := ic.Repo.ScansForItem(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": scans})
}

// ItemQR returns the label payload; ?unitId= selects one unit of the item.
func (ic *ItemController) ItemQR(c *gin.Context) {
	ctx := c.Request.Context()
	it, err := ic.Repo.FindItemByID(ctx, c.Param("id"))
	if err != nil {
		ic.fail(c, err)
		return
	}
	var unit *models.ItemUnit
	if uid := c.Query("unitId"); uid != "" {
		unit, err = ic.Repo.FindUnitByID(ctx, uid)
		if err != nil {
			ic.fail(c, err)
			return
		}
		if unit.ItemID != it.ID {
			c.JSON(http.StatusNotFound, app.H{"error": "unit not found"})
			return
		}
	}
	payload, err := qr.Encode(it, unit, ic.Now())
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"payload": payload})
}

// 扫码解析
func (ic *ItemController) Scan(c *gin.Context) {
	var in struct {
		Payload    string `json:"payload" binding:"required"`
		DeviceInfo string `json:"deviceInfo"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		ic.badRequest(c, err)
		return
	}
	if in.DeviceInfo == "" {
		in.DeviceInfo = c.Request.UserAgent()
	}
	res, err := ic.Resolver.Resolve(c.Request.Context(), in.Payload, qr.ScanContext{
		ActorID:    actor(c),
		DeviceInfo: in.DeviceInfo,
	})
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
