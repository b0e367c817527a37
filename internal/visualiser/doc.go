// Package visualiser renders finished point clouds: an interactive 3D HTML
// scatter, PNG top and side projections, and CloudCompare ASC text. Every
// type here implements sonar.PointCloudSink.
package visualiser
