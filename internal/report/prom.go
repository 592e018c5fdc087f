package report

import (
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/stats"
)

// Metric names exposed by the prom format and the /metrics endpoint.
const (
	MetricFileEntropy     = "entropyscan_file_entropy"
	MetricFileOutlier     = "entropyscan_file_outlier"
	MetricFilesDiscovered = "entropyscan_files_discovered"
	MetricFilesScored     = "entropyscan_files_scored"
	MetricEntropyMean     = "entropyscan_entropy_mean"
	MetricEntropyMedian   = "entropyscan_entropy_median"
	MetricEntropyVariance = "entropyscan_entropy_variance"
	MetricEntropyIQR      = "entropyscan_entropy_iqr"
)

// WriteProm writes families in the Prometheus text exposition format.
// Families without samples are skipped.
func WriteProm(w io.Writer, fams ...*dto.MetricFamily) error {
	for _, mf := range fams {
		if mf == nil || len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// EntropyFamily holds one gauge per scored file, labelled by path.
func EntropyFamily(files []entropy.FileEntropy) *dto.MetricFamily {
	return pathFamily(MetricFileEntropy, "Shannon entropy of the file, summed over chunks.", files)
}

// OutlierFamily holds the score of each outlier file, labelled by path.
func OutlierFamily(outliers []entropy.FileEntropy) *dto.MetricFamily {
	return pathFamily(MetricFileOutlier, "Entropy of files outside the 1.5 IQR fences.", outliers)
}

// StatsFamilies returns the file counters and, when at least one file was
// scored, the aggregate gauges.
func StatsFamilies(st stats.Stats) []*dto.MetricFamily {
	target := []*dto.LabelPair{label("target", st.Target)}
	fams := []*dto.MetricFamily{
		gauge(MetricFilesDiscovered, "Files discovered under the target.", target, float64(st.Total)),
		gauge(MetricFilesScored, "Files that produced an entropy score.", target, float64(st.Scored)),
	}
	if st.Scored == 0 {
		return fams
	}
	return append(fams,
		gauge(MetricEntropyMean, "Mean file entropy.", target, st.Mean),
		gauge(MetricEntropyMedian, "Median file entropy.", target, st.Median),
		gauge(MetricEntropyVariance, "Population variance of file entropy.", target, st.Variance),
		gauge(MetricEntropyIQR, "Interquartile range of file entropy.", target, st.IQR),
	)
}

func pathFamily(name, help string, files []entropy.FileEntropy) *dto.MetricFamily {
	mf := family(name, help)
	for _, f := range files {
		mf.Metric = append(mf.Metric, sample([]*dto.LabelPair{label("path", f.Path)}, f.Entropy))
	}
	return mf
}

func gauge(name, help string, labels []*dto.LabelPair, v float64) *dto.MetricFamily {
	mf := family(name, help)
	mf.Metric = []*dto.Metric{sample(labels, v)}
	return mf
}

func family(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func sample(labels []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}
