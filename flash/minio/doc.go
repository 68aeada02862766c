// Package minio implements a flash.Region on MinIO and S3-compatible storage.
//
// Every erase sector is stored as one object named "<prefix>/<sector>". A
// missing object reads as erased, so erasing a sector simply deletes it and a
// brand new bucket behaves like a blank chip. Programs read-modify-write the
// affected sectors.
package minio
