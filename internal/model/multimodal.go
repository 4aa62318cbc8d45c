package model

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"pvfusion/internal/batch"
	"pvfusion/internal/encoder"
	"pvfusion/internal/fusion"
	"pvfusion/internal/layer"
	"pvfusion/internal/opt"
	"pvfusion/internal/tensor"
)

// DefaultLearningRate is used when the config leaves the rate unset.
const DefaultLearningRate = 1e-4

// NWP grids can contain extreme physical values; inputs are clamped to this
// range before encoding.
const nwpClipLimit = 50

// Multimodal combines information from the enabled modalities.
//
// Each image-like modality (satellite, NWP per source) goes through an image
// encoder producing a feature vector; PV history goes through a site encoder;
// the GSP id through an embedding; sun angles through a dense layer; GSP
// yield history is used raw. The feature vectors are concatenated in a fixed
// order and passed through the output network to produce the forecast.
type Multimodal struct {
	*Base
	cfg Config

	satEncoder encoder.Image
	satEmbed   *encoder.ImageEmbedding

	nwpSources  []string
	nwpEncoders map[string]encoder.Image
	nwpEmbeds   map[string]*encoder.ImageEmbedding

	pvEncoder  *encoder.Site
	identity   *encoder.Identity
	sunEncoder *encoder.Sun

	assembler *fusion.Assembler
	outputNet *OutputNetwork

	// one optimizer per trainable component, so stateful optimizers keep
	// per-parameter moments aligned
	optimizers []*opt.Adam
	schedulers []*opt.StepLR

	training bool
}

// NewMultimodal builds the composite forecaster from its configuration.
// All shape bookkeeping is resolved here; a configuration whose widths do
// not line up fails now, not at forward time.
func NewMultimodal(cfg Config, logger *slog.Logger) (*Multimodal, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	base, err := NewBase(cfg.HistoryMinutes, cfg.ForecastMinutes, cfg.targetKey(), cfg.OutputQuantiles, logger)
	if err != nil {
		return nil, err
	}

	rng := layer.NewRNG(cfg.seed())
	m := &Multimodal{
		Base:        base,
		cfg:         cfg,
		nwpEncoders: make(map[string]encoder.Image),
		nwpEmbeds:   make(map[string]*encoder.ImageEmbedding),
	}

	var slots []fusion.Slot

	if cfg.IncludeSat {
		enc, emb, err := buildImageModality(cfg.Sat, cfg, rng)
		if err != nil {
			return nil, fmt.Errorf("model: sat: %w", err)
		}
		m.satEncoder, m.satEmbed = enc, emb
		slots = append(slots, fusion.Slot{Name: "sat", Width: enc.OutFeatures()})
	}

	for _, src := range cfg.NWP {
		enc, emb, err := buildImageModality(src.Image, cfg, rng)
		if err != nil {
			return nil, fmt.Errorf("model: nwp/%s: %w", src.Source, err)
		}
		m.nwpSources = append(m.nwpSources, src.Source)
		m.nwpEncoders[src.Source] = enc
		if emb != nil {
			m.nwpEmbeds[src.Source] = emb
		}
		slots = append(slots, fusion.Slot{Name: "nwp/" + src.Source, Width: enc.OutFeatures()})
	}

	if cfg.IncludePV {
		enc, err := encoder.NewSite(cfg.PV.SequenceLength, cfg.PV.HiddenFeatures, cfg.PV.OutFeatures, rng)
		if err != nil {
			return nil, err
		}
		m.pvEncoder = enc
		slots = append(slots, fusion.Slot{Name: "pv", Width: enc.OutFeatures()})
	}

	if cfg.IncludeGSPHistory {
		slots = append(slots, fusion.Slot{Name: "gsp", Width: base.HistoryLen30})
	}

	if cfg.EmbeddingDim > 0 {
		id, err := encoder.NewIdentity(cfg.identityCardinality(), cfg.EmbeddingDim, rng)
		if err != nil {
			return nil, err
		}
		m.identity = id
		slots = append(slots, fusion.Slot{Name: "id", Width: cfg.EmbeddingDim})
	}

	if cfg.IncludeSun {
		sun, err := encoder.NewSun(base.GSPLen(), rng)
		if err != nil {
			return nil, err
		}
		m.sunEncoder = sun
		slots = append(slots, fusion.Slot{Name: "sun", Width: sun.OutFeatures()})
	}

	assembler, err := fusion.NewAssembler(slots, cfg.SourceDropout)
	if err != nil {
		return nil, err
	}
	assembler.Seed(cfg.seed() + 1)
	m.assembler = assembler

	outputNet, err := NewOutputNetwork(assembler.TotalFeatures(), cfg.outputHidden(), base.NumOutputFeatures(), rng)
	if err != nil {
		return nil, err
	}
	m.outputNet = outputNet

	lr := cfg.LearningRate
	if lr == 0 {
		lr = DefaultLearningRate
	}
	for range m.components() {
		adam := opt.NewAdam(lr)
		m.optimizers = append(m.optimizers, adam)
		if cfg.LRDecayEpochs > 0 {
			m.schedulers = append(m.schedulers, opt.NewStepLR(nil, adam, cfg.LRDecayEpochs, cfg.LRDecayGamma))
		}
	}
	return m, nil
}

func buildImageModality(mod ImageModality, cfg Config, rng *layer.RNG) (encoder.Image, *encoder.ImageEmbedding, error) {
	encCfg := mod.ImageConfig
	if cfg.AddImageEmbedding {
		encCfg.InChannels++
	}
	enc, err := encoder.BuildImage(mod.tag(), encCfg, rng)
	if err != nil {
		return nil, nil, err
	}
	var emb *encoder.ImageEmbedding
	if cfg.AddImageEmbedding {
		emb, err = encoder.NewImageEmbedding(cfg.identityCardinality(), encCfg.ImageSizePixels, rng)
		if err != nil {
			return nil, nil, err
		}
	}
	return enc, emb, nil
}

// Config returns the model's immutable configuration.
func (m *Multimodal) Config() Config { return m.cfg }

// FusionInputFeatures returns the fused vector width.
func (m *Multimodal) FusionInputFeatures() int { return m.assembler.TotalFeatures() }

// SetTraining switches training mode (source dropout active) on or off.
func (m *Multimodal) SetTraining(training bool) {
	m.training = training
	m.assembler.SetTraining(training)
}

// components lists the trainable parts in a fixed order; the parameter
// layout of Params/SetParams follows it.
func (m *Multimodal) components() []encoder.Parametric {
	var parts []encoder.Parametric
	if m.satEncoder != nil {
		parts = append(parts, m.satEncoder)
		if m.satEmbed != nil {
			parts = append(parts, m.satEmbed)
		}
	}
	for _, src := range m.nwpSources {
		parts = append(parts, m.nwpEncoders[src])
		if emb, ok := m.nwpEmbeds[src]; ok {
			parts = append(parts, emb)
		}
	}
	if m.pvEncoder != nil {
		parts = append(parts, m.pvEncoder)
	}
	if m.identity != nil {
		parts = append(parts, m.identity)
	}
	if m.sunEncoder != nil {
		parts = append(parts, m.sunEncoder)
	}
	parts = append(parts, m.outputNet)
	return parts
}

// modeEncoder returns the trainable encoder behind a supervised modality
// name ("sat", "nwp/<source>" or "pv").
func (m *Multimodal) modeEncoder(mode string) (encoder.Parametric, bool) {
	switch {
	case mode == "sat":
		if m.satEncoder != nil {
			return m.satEncoder, true
		}
	case len(mode) > 4 && mode[:4] == "nwp/":
		if enc, ok := m.nwpEncoders[mode[4:]]; ok {
			return enc, true
		}
	case mode == "pv":
		if m.pvEncoder != nil {
			return m.pvEncoder, true
		}
	}
	return nil, false
}

// Params returns all trainable parameters flattened.
func (m *Multimodal) Params() []float64 {
	var params []float64
	for _, c := range m.components() {
		params = append(params, c.Params()...)
	}
	return params
}

// SetParams restores all trainable parameters from a flattened slice.
func (m *Multimodal) SetParams(params []float64) error {
	want := len(m.Params())
	if len(params) != want {
		return fmt.Errorf("model: parameter vector has %d values, want %d", len(params), want)
	}
	offset := 0
	for _, c := range m.components() {
		n := len(c.Params())
		c.SetParams(params[offset : offset+n])
		offset += n
	}
	return nil
}

// Gradients returns all accumulated gradients flattened.
func (m *Multimodal) Gradients() []float64 {
	var gradients []float64
	for _, c := range m.components() {
		gradients = append(gradients, c.Gradients()...)
	}
	return gradients
}

func (m *Multimodal) resetGradients() {
	for _, c := range m.components() {
		c.ResetGradients()
	}
}

// encodeImage preprocesses one image-like sample the way the original data
// flow does: clamp (NWP only), truncate the time axis, center-crop, then
// optionally append the identity channel, and encode.
func (m *Multimodal) encodeImage(enc encoder.Image, emb *encoder.ImageEmbedding, sample *tensor.Tensor, id int, clip bool) ([]float64, error) {
	s := sample
	if clip && s.MaxAbs() > nwpClipLimit {
		s = s.Clone().Clip(-nwpClipLimit, nwpClipLimit)
	}
	s, err := s.SliceTime(enc.SequenceLength())
	if err != nil {
		return nil, err
	}
	s, err = s.CenterCrop(enc.ImageSizePixels())
	if err != nil {
		return nil, err
	}
	if emb != nil {
		s, err = emb.Augment(s, id)
		if err != nil {
			return nil, err
		}
	}
	return enc.Encode(s)
}

func (m *Multimodal) sampleID(b *batch.Batch, i int) (int, error) {
	if i >= len(b.GSPID) {
		return 0, fmt.Errorf("model: batch has no identity id for example %d", i)
	}
	return b.GSPID[i], nil
}

// EncodeMode computes one modality's feature vector for example i. The
// returned slice is a copy and safe to retain.
func (m *Multimodal) EncodeMode(mode string, b *batch.Batch, i int) ([]float64, error) {
	var feat []float64
	var err error

	switch {
	case mode == "sat":
		if m.satEncoder == nil {
			return nil, fmt.Errorf("model: satellite modality not enabled")
		}
		if i >= len(b.Satellite) {
			return nil, fmt.Errorf("model: batch has no satellite sample %d", i)
		}
		id := 0
		if m.satEmbed != nil {
			if id, err = m.sampleID(b, i); err != nil {
				return nil, err
			}
		}
		feat, err = m.encodeImage(m.satEncoder, m.satEmbed, b.Satellite[i], id, false)

	case len(mode) > 4 && mode[:4] == "nwp/":
		src := mode[4:]
		enc, ok := m.nwpEncoders[src]
		if !ok {
			return nil, fmt.Errorf("model: NWP source %q not enabled", src)
		}
		samples, ok := b.NWP[src]
		if !ok || i >= len(samples) {
			return nil, fmt.Errorf("model: batch has no nwp/%s sample %d", src, i)
		}
		id := 0
		if m.nwpEmbeds[src] != nil {
			if id, err = m.sampleID(b, i); err != nil {
				return nil, err
			}
		}
		feat, err = m.encodeImage(enc, m.nwpEmbeds[src], samples[i], id, true)

	case mode == "pv":
		if m.pvEncoder == nil {
			return nil, fmt.Errorf("model: PV modality not enabled")
		}
		if i >= len(b.PVHistory) {
			return nil, fmt.Errorf("model: batch has no pv history for example %d", i)
		}
		series := b.PVHistory[i]
		n := m.pvEncoder.SequenceLength()
		if len(series) < n {
			return nil, fmt.Errorf("model: pv history has %d steps, want %d", len(series), n)
		}
		feat, err = m.pvEncoder.Encode(series[:n])

	default:
		return nil, fmt.Errorf("model: unknown modality %q", mode)
	}
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(feat))
	copy(out, feat)
	return out, nil
}

// forwardSample builds the ordered modality features for example i, fuses
// them, and runs the output network. Returned slices are copies.
func (m *Multimodal) forwardSample(b *batch.Batch, i int) ([]float64, *fusion.Modes, error) {
	modes := fusion.NewModes()

	if m.satEncoder != nil {
		feat, err := m.EncodeMode("sat", b, i)
		if err != nil {
			return nil, nil, err
		}
		modes.Add("sat", feat)
	}
	for _, src := range m.nwpSources {
		feat, err := m.EncodeMode("nwp/"+src, b, i)
		if err != nil {
			return nil, nil, err
		}
		modes.Add("nwp/"+src, feat)
	}
	if m.pvEncoder != nil {
		feat, err := m.EncodeMode("pv", b, i)
		if err != nil {
			return nil, nil, err
		}
		modes.Add("pv", feat)
	}
	if m.cfg.IncludeGSPHistory {
		if i >= len(b.GSP) {
			return nil, nil, fmt.Errorf("model: batch has no gsp history for example %d", i)
		}
		hist := make([]float64, m.HistoryLen30)
		copy(hist, b.GSP[i][:m.HistoryLen30])
		modes.Add("gsp", hist)
	}
	if m.identity != nil {
		id, err := m.sampleID(b, i)
		if err != nil {
			return nil, nil, err
		}
		feat, err := m.identity.Encode(id)
		if err != nil {
			return nil, nil, err
		}
		out := make([]float64, len(feat))
		copy(out, feat)
		modes.Add("id", out)
	}
	if m.sunEncoder != nil {
		if i >= len(b.SolarAzimuth) || i >= len(b.SolarElevation) {
			return nil, nil, fmt.Errorf("model: batch has no solar angles for example %d", i)
		}
		n := m.GSPLen()
		feat, err := m.sunEncoder.Encode(b.SolarAzimuth[i][:n], b.SolarElevation[i][:n])
		if err != nil {
			return nil, nil, err
		}
		out := make([]float64, len(feat))
		copy(out, feat)
		modes.Add("sun", out)
	}

	fused, err := m.assembler.Concat(modes)
	if err != nil {
		return nil, nil, err
	}
	rowBuf := m.outputNet.Forward(fused)
	row := make([]float64, len(rowBuf))
	copy(row, rowBuf)
	return row, modes, nil
}

// backwardSample propagates one example's output gradient through the output
// network, the fusion split, and each modality encoder. extraModeGrads adds
// per-modality feature gradients (the distillation term) before the encoder
// backward. Must be called directly after forwardSample for the same example
// while the layer buffers still hold its activations.
func (m *Multimodal) backwardSample(rowGrad []float64, b *batch.Batch, i int, extraModeGrads map[string][]float64) error {
	fusedGrad := m.outputNet.Backward(rowGrad)
	slotGrads, err := m.assembler.SplitGrad(fusedGrad)
	if err != nil {
		return err
	}

	for j, slot := range m.assembler.Slots() {
		g := slotGrads[j]
		if extra, ok := extraModeGrads[slot.Name]; ok {
			floats.Add(g, extra)
		}
		switch {
		case slot.Name == "sat":
			inGrad := m.satEncoder.Backward(g)
			if m.satEmbed != nil {
				m.satEmbed.Accumulate(inGrad, m.satEncoder.SequenceLength(), m.satEncoder.InChannels())
			}
		case len(slot.Name) > 4 && slot.Name[:4] == "nwp/":
			src := slot.Name[4:]
			enc := m.nwpEncoders[src]
			inGrad := enc.Backward(g)
			if emb := m.nwpEmbeds[src]; emb != nil {
				emb.Accumulate(inGrad, enc.SequenceLength(), enc.InChannels())
			}
		case slot.Name == "pv":
			m.pvEncoder.Backward(g)
		case slot.Name == "gsp":
			// raw history carries no parameters
		case slot.Name == "id":
			m.identity.Backward(g)
		case slot.Name == "sun":
			m.sunEncoder.Backward(g)
		}
	}
	return nil
}

// Forward runs the model over a batch and returns one flat forecast row per
// example (width NumOutputFeatures). Quantile rows are quantile-minor; use
// QuantileForecast to reshape.
func (m *Multimodal) Forward(b *batch.Batch) ([][]float64, error) {
	rows, _, err := m.ForwardModes(b)
	return rows, err
}

// ForwardModes runs the model and additionally returns each example's
// per-modality feature vectors, in fusion order.
func (m *Multimodal) ForwardModes(b *batch.Batch) ([][]float64, []*fusion.Modes, error) {
	if err := b.Validate(m.GSPLen()); err != nil {
		return nil, nil, err
	}
	n := b.Size()
	rows := make([][]float64, n)
	allModes := make([]*fusion.Modes, n)
	for i := 0; i < n; i++ {
		row, modes, err := m.forwardSample(b, i)
		if err != nil {
			return nil, nil, err
		}
		rows[i] = row
		allModes[i] = modes
	}
	return rows, allModes, nil
}

// step averages the accumulated gradients over the batch and applies one
// optimizer update per component.
func (m *Multimodal) step(batchSize int) {
	inv := 1.0 / float64(batchSize)
	for i, c := range m.components() {
		grads := c.Gradients()
		floats.Scale(inv, grads)
		c.SetParams(m.optimizers[i].Step(c.Params(), grads))
	}
}

// EndEpoch advances the learning-rate schedule, returns the epoch's mean
// metrics, and resets the accumulators.
func (m *Multimodal) EndEpoch() map[string]float64 {
	for _, s := range m.schedulers {
		s.Step()
	}
	metrics := m.Metrics()
	m.ResetMetrics()
	return metrics
}

// LearningRate returns the current optimizer learning rate.
func (m *Multimodal) LearningRate() float64 {
	if len(m.optimizers) == 0 {
		return 0
	}
	return m.optimizers[0].LearningRate
}

// TrainingStep runs one optimization step over the batch and returns the
// step's losses.
func (m *Multimodal) TrainingStep(b *batch.Batch) (map[string]float64, error) {
	m.SetTraining(true)
	if err := b.Validate(m.GSPLen()); err != nil {
		return nil, err
	}
	series, err := b.Series(m.TargetKey())
	if err != nil {
		return nil, err
	}
	m.resetGradients()

	n := b.Size()
	var primarySum, mseSum float64
	grad := make([]float64, m.NumOutputFeatures())
	for i := 0; i < n; i++ {
		row, _, err := m.forwardSample(b, i)
		if err != nil {
			return nil, err
		}
		y, err := m.Target(series[i])
		if err != nil {
			return nil, err
		}
		primarySum += m.PrimaryLoss(row, y)
		mseSum += m.MSEMetric(row, y)
		m.PrimaryGrad(row, y, grad)
		if err := m.backwardSample(grad, b, i, nil); err != nil {
			return nil, err
		}
	}
	m.step(n)

	losses := map[string]float64{
		m.PrimaryLossName(): primarySum / float64(n),
		"MSE":               mseSum / float64(n),
	}
	for name, v := range losses {
		m.LogMetric(name+"/train", v)
	}
	return losses, nil
}

// ValidationStep computes the step's losses without touching any weights.
func (m *Multimodal) ValidationStep(b *batch.Batch) (map[string]float64, error) {
	m.SetTraining(false)
	rows, err := m.Forward(b)
	if err != nil {
		return nil, err
	}
	series, err := b.Series(m.TargetKey())
	if err != nil {
		return nil, err
	}
	var primarySum, mseSum float64
	for i, row := range rows {
		y, err := m.Target(series[i])
		if err != nil {
			return nil, err
		}
		primarySum += m.PrimaryLoss(row, y)
		mseSum += m.MSEMetric(row, y)
	}
	n := float64(len(rows))
	losses := map[string]float64{
		m.PrimaryLossName(): primarySum / n,
		"MSE":               mseSum / n,
	}
	for name, v := range losses {
		m.LogMetric(name+"/val", v)
	}
	return losses, nil
}
