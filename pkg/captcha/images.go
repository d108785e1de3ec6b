package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/cxsign/cxsign/pkg/common"
)

// verification payload shape shared by all built-in kinds; unused
// fields stay empty per kind
type imageVerification struct {
	ShadeImage  string `json:"shadeImage"`
	CutoutImage string `json:"cutoutImage"`
	OriginImage string `json:"originImage"`
}

func (c *Client) fetchImage(ctx context.Context, rawURL string) (image.Image, error) {
	resp, err := c.Agent.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &common.StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode captcha image: %v", common.ErrParse, err)
	}

	return img, nil
}

// loadInput downloads the image set referenced by the challenge payload.
// Slide and rotate ship a shaded background plus a cutout piece, the
// click kinds a single origin image.
func (c *Client) loadInput(ctx context.Context, ch *Challenge) (*Input, error) {
	var vo imageVerification
	if err := json.Unmarshal(ch.Payload, &vo); err != nil {
		return nil, fmt.Errorf("%w: imageVerificationVo: %v", common.ErrParse, err)
	}

	in := &Input{Kind: ch.Kind}

	switch ch.Kind {
	case KindSlide, KindRotate:
		if len(vo.ShadeImage) == 0 || len(vo.CutoutImage) == 0 {
			return nil, fmt.Errorf("%w: challenge without shade/cutout images", common.ErrParse)
		}
		shade, err := c.fetchImage(ctx, vo.ShadeImage)
		if err != nil {
			return nil, err
		}
		cutout, err := c.fetchImage(ctx, vo.CutoutImage)
		if err != nil {
			return nil, err
		}
		in.Background, in.Piece = shade, cutout
	default:
		src := vo.OriginImage
		if len(src) == 0 {
			src = vo.ShadeImage
		}
		if len(src) == 0 {
			return nil, fmt.Errorf("%w: challenge without origin image", common.ErrParse)
		}
		bg, err := c.fetchImage(ctx, src)
		if err != nil {
			return nil, err
		}
		in.Background = bg
	}

	return in, nil
}
