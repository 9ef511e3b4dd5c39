package jobspec

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var ErrUnknownTool = errors.New("unknown tool")

// Validate checks that the descriptor is internally consistent: the
// tool is known, the input count fits the tool, and exactly the option
// variant matching the tool is populated with sane values.
func (d *Descriptor) Validate() error {
	if !d.Tool.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTool, d.Tool)
	}
	if d.RequesterID == 0 {
		return errors.New("requester id is required")
	}

	if err := d.checkInputCount(); err != nil {
		return err
	}
	if err := d.Options.check(d.Tool); err != nil {
		return err
	}
	return nil
}

func (d *Descriptor) checkInputCount() error {
	n := len(d.Inputs)
	for _, ref := range d.Inputs {
		if string(ref) == "" {
			return errors.New("empty input reference")
		}
	}

	switch d.Tool {
	case ToolMerge:
		if n < 2 {
			return fmt.Errorf("merge needs at least 2 inputs, got %d", n)
		}
	case ToolWatermark:
		if d.Options.Watermark != nil && d.Options.Watermark.Mode == WatermarkImage {
			if n != 2 {
				return fmt.Errorf("image watermark needs the video and the watermark image, got %d inputs", n)
			}
		} else if n != 1 {
			return fmt.Errorf("%s needs exactly 1 input, got %d", d.Tool, n)
		}
	default:
		if n != 1 {
			return fmt.Errorf("%s needs exactly 1 input, got %d", d.Tool, n)
		}
	}
	return nil
}

func (o *Options) check(tool Tool) error {
	if err := o.checkExclusive(tool); err != nil {
		return err
	}

	switch tool {
	case ToolEncode:
		if o.Encode == nil {
			o.Encode = &EncodeOptions{}
		}
		return validate.Struct(o.Encode)
	case ToolTrim:
		if o.Trim == nil {
			return errors.New("trim options are required")
		}
		if err := validate.Struct(o.Trim); err != nil {
			return err
		}
		start, err := ParseTimecode(o.Trim.Start)
		if err != nil {
			return fmt.Errorf("trim start: %w", err)
		}
		end, err := ParseTimecode(o.Trim.End)
		if err != nil {
			return fmt.Errorf("trim end: %w", err)
		}
		if end <= start {
			return errors.New("trim end must be after start")
		}
		return nil
	case ToolWatermark:
		if o.Watermark == nil {
			return errors.New("watermark options are required")
		}
		if err := validate.Struct(o.Watermark); err != nil {
			return err
		}
		if o.Watermark.Mode == WatermarkText && o.Watermark.Text == "" {
			return errors.New("text watermark needs text")
		}
		return nil
	case ToolSample:
		if o.Sample == nil {
			return errors.New("sample options are required")
		}
		return validate.Struct(o.Sample)
	case ToolExtract:
		if o.Extract == nil {
			return errors.New("extract options are required")
		}
		return validate.Struct(o.Extract)
	case ToolRotate:
		if o.Rotate == nil {
			return errors.New("rotate options are required")
		}
		return validate.Struct(o.Rotate)
	case ToolFlip:
		if o.Flip == nil {
			return errors.New("flip options are required")
		}
		return validate.Struct(o.Flip)
	case ToolSpeed:
		if o.Speed == nil {
			return errors.New("speed options are required")
		}
		return validate.Struct(o.Speed)
	case ToolVolume:
		if o.Volume == nil {
			return errors.New("volume options are required")
		}
		return validate.Struct(o.Volume)
	case ToolCrop:
		if o.Crop == nil {
			return errors.New("crop options are required")
		}
		return validate.Struct(o.Crop)
	case ToolGif:
		if o.Gif == nil {
			o.Gif = &GifOptions{}
		}
		return validate.Struct(o.Gif)
	}
	return nil
}

// checkExclusive rejects option variants that do not belong to the
// tool, so a descriptor cannot smuggle settings past validation.
func (o *Options) checkExclusive(tool Tool) error {
	set := map[Tool]bool{
		ToolEncode:    o.Encode != nil,
		ToolTrim:      o.Trim != nil,
		ToolWatermark: o.Watermark != nil,
		ToolSample:    o.Sample != nil,
		ToolExtract:   o.Extract != nil,
		ToolRotate:    o.Rotate != nil,
		ToolFlip:      o.Flip != nil,
		ToolSpeed:     o.Speed != nil,
		ToolVolume:    o.Volume != nil,
		ToolCrop:      o.Crop != nil,
		ToolGif:       o.Gif != nil,
	}
	for t, present := range set {
		if present && t != tool {
			return fmt.Errorf("%s options set on a %s task", t, tool)
		}
	}
	return nil
}
