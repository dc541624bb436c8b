package uploads

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

type (
	// Dto carries everything a browser needs to push a file straight to
	// object storage: the signed URL and the key the object will land
	// under.
	Dto struct {
		Url string `json:"url"`
		Key string `json:"key"`
	}

	Signer interface {
		PresignUpload(ctx context.Context) (url string, key string, err error)
	}

	Controller struct {
		signer Signer
	}
)

func New(signer Signer) *Controller {
	return &Controller{signer: signer}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.presign)
}

// presign mints a fresh presigned upload URL. The upload itself never
// touches this API; ingestion is driven by the storage notification
// that fires once the client finishes uploading.
func (controller *Controller) presign(ec echo.Context) error {
	url, key, err := controller.signer.PresignUpload(ec.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, Dto{Url: url, Key: key})
}
